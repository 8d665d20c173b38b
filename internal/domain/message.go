package domain

// InboundMessage is a single chat-network message delivered to a tenant's
// session, normalized for forwarding to webhooks.
type InboundMessage struct {
	TenantID  string
	From      string
	To        string
	Text      string
	MessageID string
	Timestamp int64 // unix milliseconds, per spec §9 resolution
	Type      string
	MediaURL  string
	Caption   string
	FromMe    bool
}

// HasContent reports whether the message carries retainable content: text
// or a media attachment. Empty, non-media messages are dropped per spec
// §4.4 inbound handling.
func (m InboundMessage) HasContent() bool {
	return m.Text != "" || m.MediaURL != ""
}
