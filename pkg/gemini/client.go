package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/haivivi/nova/pkg/voice"
)

const (
	// DefaultBaseURL is the Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/"

	// DefaultAPIVersion is the API version used by the live and content
	// endpoints.
	DefaultAPIVersion = "v1beta"

	// MessageMissingCredential is reported when no API key is configured.
	MessageMissingCredential = "API Key not found"
)

// Transport selects the live connection implementation.
type Transport string

const (
	// TransportWebSocket speaks the BidiGenerateContent protocol directly.
	TransportWebSocket Transport = "ws"
	// TransportSDK uses the genai SDK live session.
	TransportSDK Transport = "sdk"
)

// ParseTransport parses "ws" or "sdk". Empty selects TransportWebSocket.
func ParseTransport(s string) (Transport, error) {
	switch Transport(strings.ToLower(strings.TrimSpace(s))) {
	case "", TransportWebSocket, "websocket":
		return TransportWebSocket, nil
	case TransportSDK, "genai":
		return TransportSDK, nil
	}
	return "", fmt.Errorf("gemini: unknown transport %q", s)
}

// Client is the Gemini API client. It opens live voice connections and
// serves chat and image requests.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	transport  Transport
	imageModel string
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu    sync.Mutex
	genai *genai.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL. The live endpoint is derived from it
// by switching the scheme to ws or wss.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIVersion overrides DefaultAPIVersion.
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.apiVersion = v
		}
	}
}

// WithTransport selects the live transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithImageModel overrides DefaultImageModel.
func WithImageModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.imageModel = model
		}
	}
}

// WithHTTPClient sets the HTTP client for content requests. Its timeout also
// bounds the websocket handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client. It fails with a voice.CodeMissingCredential
// error when apiKey is empty.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, voice.NewError(voice.CodeMissingCredential, MessageMissingCredential, nil)
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		transport:  TransportWebSocket,
		imageModel: DefaultImageModel,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	handshake := 30 * time.Second
	if c.httpClient.Timeout > 0 {
		handshake = c.httpClient.Timeout
	}
	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}
	return c, nil
}

// NewClientFactory returns a voice.ClientFactory. Each call creates a fresh
// client so a key fixed in configuration is checked at session start.
func NewClientFactory(apiKey string, opts ...Option) voice.ClientFactory {
	return func() (voice.Client, error) {
		c, err := NewClient(apiKey, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// APIKeyFromEnv returns API_KEY, falling back to GEMINI_API_KEY.
func APIKeyFromEnv() string {
	for _, name := range []string{"API_KEY", "GEMINI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// Transport returns the configured live transport.
func (c *Client) Transport() Transport {
	return c.transport
}

// Connect opens a live connection with the configured transport.
func (c *Client) Connect(ctx context.Context, cfg *voice.LiveConfig) (voice.Conn, error) {
	if cfg == nil {
		def := voice.DefaultLiveConfig()
		cfg = &def
	}
	if c.transport == TransportSDK {
		conn, err := c.connectSDK(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	conn, err := c.connectWebSocket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// GenAI returns the SDK client, creating it on first use.
func (c *Client) GenAI(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.genai != nil {
		return c.genai, nil
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: c.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: genai client: %w", err)
	}
	c.genai = gc
	return gc, nil
}

// liveURL derives the BidiGenerateContent endpoint from the base URL.
func (c *Client) liveURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("gemini: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = path.Join("/", u.Path, "ws",
		"google.ai.generativelanguage."+c.apiVersion+".GenerativeService.BidiGenerateContent")
	return u.String(), nil
}

var _ voice.Client = (*Client)(nil)
