package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "angelone-web/internal/errors"
	"angelone-web/internal/logging"
)

// DefaultBaseURL is the production SmartAPI endpoint.
const DefaultBaseURL = "https://apiconnect.angelbroking.com"

const (
	loginPath      = "/rest/auth/angelbroking/user/v1/loginByPassword"
	logoutPath     = "/rest/secure/angelbroking/user/v1/logout"
	placeOrderPath = "/rest/secure/angelbroking/order/v1/placeOrder"
	orderBookPath  = "/rest/secure/angelbroking/order/v1/getOrderBook"
	candlePath     = "/rest/secure/angelbroking/historical/v1/getCandleData"
	ltpPath        = "/rest/secure/angelbroking/order/v1/getLtpData"
)

// Client is an HTTP implementation of the SmartAPI interface. A Client is
// cheap to construct; the web layer builds one per request from the session
// credentials rather than pooling connections.
type Client struct {
	apiKey      string
	accessToken string
	baseURL     string
	httpClient  *http.Client
	localIP     string
	macAddress  string
	logger      zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the SmartAPI endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger for API call tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a SmartAPI client carrying the given private API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		localIP:    localIPAddress(),
		macAddress: "00:00:00:00:00:00",
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAccessToken sets the JWT used on secure endpoints. A leading
// "Bearer " prefix is stripped so tokens round-trip from session storage.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = strings.TrimPrefix(token, "Bearer ")
}

// GenerateSession performs the password+TOTP login.
func (c *Client) GenerateSession(ctx context.Context, clientID, password, totp string) (*Envelope, error) {
	body := map[string]string{
		"clientcode": clientID,
		"password":   password,
		"totp":       totp,
	}
	return c.post(ctx, loginPath, body)
}

// PlaceOrder submits an order envelope.
func (c *Client) PlaceOrder(ctx context.Context, params OrderParams) (*Envelope, error) {
	return c.post(ctx, placeOrderPath, params)
}

// OrderBook fetches all orders for the current session.
func (c *Client) OrderBook(ctx context.Context) (*Envelope, error) {
	return c.get(ctx, orderBookPath)
}

// GetCandleData requests historical OHLC candles.
func (c *Client) GetCandleData(ctx context.Context, params CandleParams) (*Envelope, error) {
	return c.post(ctx, candlePath, params)
}

// GetLTP fetches the last traded price for an instrument.
func (c *Client) GetLTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (*Envelope, error) {
	body := map[string]string{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   symbolToken,
	}
	return c.post(ctx, ltpPath, body)
}

// TerminateSession logs the client code out of the remote session.
func (c *Client) TerminateSession(ctx context.Context, clientID string) (*Envelope, error) {
	body := map[string]string{"clientcode": clientID}
	return c.post(ctx, logoutPath, body)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, "encoding request")
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(payload))
}

func (c *Client) get(ctx context.Context, path string) (*Envelope, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.LogAPICall(c.logger, method, path, time.Since(start), err)
		return nil, apperrors.Wrapf(err, "calling %s", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading response from %s", path)
	}
	logging.LogAPICall(c.logger, method, path, time.Since(start), nil)

	env, err := decodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return env, nil
}

// decodeEnvelope parses the SmartAPI response wrapper. A body that is not a
// JSON object is reported as an invalid response type rather than a decode
// error so callers can surface it distinctly.
func decodeEnvelope(raw []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, apperrors.NewMalformedResponseError("invalid response type", snippet(trimmed))
	}
	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, apperrors.NewMalformedResponseError("unexpected shape", snippet(trimmed))
	}
	return &env, nil
}

func snippet(raw []byte) string {
	const max = 200
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", c.localIP)
	req.Header.Set("X-ClientPublicIP", c.localIP)
	req.Header.Set("X-MACAddress", c.macAddress)
	req.Header.Set("X-PrivateKey", c.apiKey)
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
}

// localIPAddress returns a best-effort non-loopback address for the
// X-ClientLocalIP header. SmartAPI only requires the header to be present.
func localIPAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String()
		}
	}
	return "127.0.0.1"
}

var _ SmartAPI = (*Client)(nil)

// String implements fmt.Stringer without exposing the access token.
func (c *Client) String() string {
	return fmt.Sprintf("smartapi.Client{baseURL: %s, authenticated: %v}", c.baseURL, c.accessToken != "")
}
