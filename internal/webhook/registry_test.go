package webhook

import (
	"testing"
	"time"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestRegisterUpdatesInPlacePreservingIDAndCounters(t *testing.T) {
	reg := NewRegistry()

	first := reg.Register("acme", RegisterInput{URL: "https://example.com/hook-1", Secret: "a"})
	reg.recordSuccess("acme", time.Millisecond)
	reg.recordFailure("acme")

	second := reg.Register("acme", RegisterInput{URL: "https://example.com/hook-2", Secret: "b"})

	require.Equal(t, first.ID, second.ID, "re-registration must keep the sink's id stable")
	require.Equal(t, "https://example.com/hook-2", second.URL)
	require.Equal(t, 1, second.SuccessCount, "counters survive re-registration")
	require.Equal(t, 1, second.ErrorCount, "counters survive re-registration")
}

func TestRegisterDefaultsToMessageEventWhenNoneGiven(t *testing.T) {
	reg := NewRegistry()
	sink := reg.Register("acme", RegisterInput{URL: "https://example.com/hook"})
	require.True(t, sink.Subscribes(domain.WebhookEventMessage))
}
