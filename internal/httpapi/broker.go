package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/shsh-labs/chatgw/internal/pairing"
	"github.com/shsh-labs/chatgw/internal/sessionmgr"
	"github.com/shsh-labs/chatgw/internal/webhook"
)

// broker fans Session Manager events out to the Pairing-Code Service, the
// Webhook Dispatcher, and any HTTP handlers blocked in /poll, per spec
// §4.4's emitted-events list and §2's "Control" data flow. It implements
// sessionmgr.EventSink.
type broker struct {
	pairingSvc *pairing.Service
	dispatcher *webhook.Dispatcher

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func newBroker(pairingSvc *pairing.Service, dispatcher *webhook.Dispatcher) *broker {
	return &broker{
		pairingSvc: pairingSvc,
		dispatcher: dispatcher,
		waiters:    make(map[string][]chan struct{}),
	}
}

// Handle implements sessionmgr.EventSink.
func (b *broker) Handle(e sessionmgr.Event) {
	switch e.Kind {
	case sessionmgr.EventQR:
		b.pairingSvc.SetArtifact(e.TenantID, e.Session.PairingArtifact)
		b.dispatchStatus(e.TenantID, "qr", "")
	case sessionmgr.EventConnected:
		b.pairingSvc.MarkConnected(e.TenantID)
		b.dispatchStatus(e.TenantID, "connected", e.Session.PhoneNumber)
	case sessionmgr.EventDisconnected:
		b.dispatchStatus(e.TenantID, "disconnected", "")
	case sessionmgr.EventMessage:
		b.dispatchMessage(e.TenantID, e.Message)
	}

	b.wake(e.TenantID)
}

func (b *broker) dispatchStatus(tenantID, status, phoneNumber string) {
	data := map[string]interface{}{"status": status, "event": "status_change"}
	if phoneNumber != "" {
		data["phoneNumber"] = phoneNumber
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	_ = b.dispatcher.Dispatch(ctx, tenantID, domain.WebhookEventStatus, webhook.Payload{
		Event:     domain.WebhookEventStatus,
		TenantID:  tenantID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (b *broker) dispatchMessage(tenantID string, msg domain.InboundMessage) {
	data := map[string]interface{}{
		"from":      msg.From,
		"to":        msg.To,
		"message":   msg.Text,
		"messageId": msg.MessageID,
		"type":      msg.Type,
	}
	if msg.MediaURL != "" {
		data["mediaUrl"] = msg.MediaURL
	}
	if msg.Caption != "" {
		data["caption"] = msg.Caption
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	_ = b.dispatcher.Dispatch(ctx, tenantID, domain.WebhookEventMessage, webhook.Payload{
		Event:     domain.WebhookEventMessage,
		TenantID:  tenantID,
		MessageID: msg.MessageID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// waitForChange blocks until the next event for tenantID, ctx cancellation,
// or timeout, whichever first, backing GET /sessions/{tenantId}/poll.
func (b *broker) waitForChange(ctx context.Context, tenantID string, timeout time.Duration) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.waiters[tenantID] = append(b.waiters[tenantID], ch)
	b.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ch:
	case <-t.C:
	case <-ctx.Done():
	}
}

func (b *broker) wake(tenantID string) {
	b.mu.Lock()
	waiters := b.waiters[tenantID]
	delete(b.waiters, tenantID)
	b.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}
