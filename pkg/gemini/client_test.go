package gemini

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/nova/pkg/voice"
)

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.True(t, voice.IsMissingCredential(err))
	e, _ := voice.AsError(err)
	assert.Equal(t, MessageMissingCredential, e.Message)
}

func TestNewClientFactory(t *testing.T) {
	client, err := NewClientFactory("")()
	assert.Nil(t, client)
	assert.True(t, voice.IsMissingCredential(err))

	client, err = NewClientFactory("key", WithTransport(TransportSDK))()
	require.NoError(t, err)
	assert.Equal(t, TransportSDK, client.(*Client).Transport())
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gemini")
	assert.Equal(t, "gemini", APIKeyFromEnv())

	t.Setenv("API_KEY", "primary")
	assert.Equal(t, "primary", APIKeyFromEnv())
}

func TestParseTransport(t *testing.T) {
	for in, want := range map[string]Transport{
		"":          TransportWebSocket,
		"ws":        TransportWebSocket,
		"WebSocket": TransportWebSocket,
		"sdk":       TransportSDK,
		" genai ":   TransportSDK,
	} {
		got, err := ParseTransport(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseTransport("webrtc")
	assert.Error(t, err)
}

func TestLiveURL(t *testing.T) {
	tests := []struct {
		base, version, want string
	}{
		{DefaultBaseURL, DefaultAPIVersion, "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"},
		{"http://127.0.0.1:8080/proxy", "v1alpha", "ws://127.0.0.1:8080/proxy/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"},
	}
	for _, tt := range tests {
		c, err := NewClient("k", WithBaseURL(tt.base), WithAPIVersion(tt.version))
		require.NoError(t, err)
		got, err := c.liveURL()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestHTTPClientTimeoutBoundsHandshake(t *testing.T) {
	c, err := NewClient("k", WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.dialer.HandshakeTimeout)

	c, err = NewClient("k", WithHTTPClient(nil))
	require.NoError(t, err)
	assert.Equal(t, http.DefaultClient, c.httpClient)
}

func TestErrorRetryable(t *testing.T) {
	assert.True(t, (&Error{Code: http.StatusTooManyRequests}).Retryable())
	assert.True(t, (&Error{Code: websocket.CloseTryAgainLater}).Retryable())
	assert.False(t, (&Error{Code: http.StatusUnauthorized}).Retryable())
	assert.Equal(t, "gemini: chat: 401 UNAUTHENTICATED: bad key",
		(&Error{Op: "chat", Code: 401, Status: "UNAUTHENTICATED", Message: "bad key"}).Error())
}
