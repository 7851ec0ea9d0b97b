package stream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"angelone-web/internal/models"
)

// DefaultFeedURL is the SmartAPI smart-stream websocket endpoint.
const DefaultFeedURL = "wss://smartapisocket.angelone.in/smart-stream"

// Smart-stream subscription actions and modes.
const (
	SubscribeAction   = 1
	UnsubscribeAction = 0

	LTPMode   = 1
	QuoteMode = 2
	SnapQuote = 3
)

// Smart-stream exchange type codes.
const (
	NSECM = 1
	NSEFO = 2
	BSECM = 3
	BSEFO = 4
	MCXFO = 5
	NCXFO = 7
	CDEFO = 13
)

// ExchangeTypeMap maps directory exchange names to smart-stream exchange
// type codes.
var ExchangeTypeMap = map[string]int{
	"NSE": NSECM,
	"NFO": NSEFO,
	"BSE": BSECM,
	"MCX": MCXFO,
	"CDS": CDEFO,
}

// FeedAuth carries the per-session credentials the feed handshake requires.
type FeedAuth struct {
	AuthToken string
	APIKey    string
	ClientID  string
	FeedToken string
}

// Feed maintains the smart-stream websocket connection and publishes LTP
// ticks to the hub. One feed runs per authenticated browser session that
// starts streaming.
type Feed struct {
	url     string
	auth    FeedAuth
	hub     *Hub
	symbols map[string]string // token -> symbol, for tick enrichment
	logger  zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	cancel  context.CancelFunc
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithFeedURL overrides the smart-stream endpoint, used by tests.
func WithFeedURL(url string) FeedOption {
	return func(f *Feed) { f.url = url }
}

// WithFeedLogger attaches a logger.
func WithFeedLogger(logger zerolog.Logger) FeedOption {
	return func(f *Feed) { f.logger = logger }
}

// NewFeed creates a feed publishing into hub.
func NewFeed(auth FeedAuth, hub *Hub, opts ...FeedOption) *Feed {
	f := &Feed{
		url:     DefaultFeedURL,
		auth:    auth,
		hub:     hub,
		symbols: make(map[string]string),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// subscribeRequest is the JSON subscription message.
type subscribeRequest struct {
	CorrelationID string          `json:"correlationID"`
	Action        int             `json:"action"`
	Params        subscribeParams `json:"params"`
}

type subscribeParams struct {
	Mode      int         `json:"mode"`
	TokenList []tokenList `json:"tokenList"`
}

type tokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// Start connects, subscribes to the given directory entries in LTP mode and
// begins the read loop. It returns once the connection is established.
func (f *Feed) Start(ctx context.Context, entries []models.StockEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+strings.TrimPrefix(f.auth.AuthToken, "Bearer "))
	header.Set("x-api-key", f.auth.APIKey)
	header.Set("x-client-code", f.auth.ClientID)
	header.Set("x-feed-token", f.auth.FeedToken)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("connecting to quote feed: %w", err)
	}
	f.conn = conn

	if err := f.subscribe(entries); err != nil {
		conn.Close()
		f.conn = nil
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.started = true

	// The goroutines capture the connection directly: a concurrent Stop may
	// nil the field, and its Close is what unblocks the pending read.
	go f.readLoop(runCtx, conn)
	go f.heartbeatLoop(runCtx, conn)

	f.logger.Info().Int("symbols", len(entries)).Msg("Quote feed started")
	return nil
}

func (f *Feed) subscribe(entries []models.StockEntry) error {
	byExchange := make(map[int][]string)
	for _, entry := range entries {
		code, ok := ExchangeTypeMap[strings.ToUpper(entry.Exchange)]
		if !ok {
			f.logger.Warn().Str("exchange", entry.Exchange).Str("symbol", entry.Symbol).Msg("Unknown exchange for feed subscription")
			continue
		}
		byExchange[code] = append(byExchange[code], entry.Token)
		f.symbols[entry.Token] = strings.ToUpper(entry.Symbol)
	}

	lists := make([]tokenList, 0, len(byExchange))
	for code, tokens := range byExchange {
		lists = append(lists, tokenList{ExchangeType: code, Tokens: tokens})
	}

	req := subscribeRequest{
		CorrelationID: fmt.Sprintf("angelone-web-%d", time.Now().Unix()),
		Action:        SubscribeAction,
		Params: subscribeParams{
			Mode:      LTPMode,
			TokenList: lists,
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return f.conn.WriteMessage(websocket.TextMessage, payload)
}

// Stop closes the connection and ends the read loop.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return
	}
	f.started = false
	if f.cancel != nil {
		f.cancel()
	}
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.logger.Info().Msg("Quote feed stopped")
}

// IsStarted reports whether the feed is running.
func (f *Feed) IsStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Warn().Err(err).Msg("Quote feed connection closed")
			}
			f.Stop()
			return
		}
		if messageType != websocket.BinaryMessage {
			continue // pong and other text frames
		}

		tick, ok := f.parseTick(payload)
		if !ok {
			continue
		}
		f.hub.Publish(tick)
	}
}

// heartbeatLoop sends the ping text frame the smart-stream protocol expects
// every 30 seconds.
func (f *Feed) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				f.logger.Warn().Err(err).Msg("Quote feed heartbeat failed")
				return
			}
		}
	}
}

// parseTick decodes an LTP-mode binary packet: mode (1B), exchange type
// (1B), token (25B null-padded), sequence (8B LE), exchange timestamp in
// milliseconds (8B LE), last traded price in paise (8B LE).
func (f *Feed) parseTick(payload []byte) (models.Tick, bool) {
	const ltpPacketLen = 51
	if len(payload) < ltpPacketLen || payload[0] != LTPMode {
		return models.Tick{}, false
	}

	token := strings.TrimRight(string(payload[2:27]), "\x00")
	sequence := int64(binary.LittleEndian.Uint64(payload[27:35]))
	timestampMs := int64(binary.LittleEndian.Uint64(payload[35:43]))
	pricePaise := int64(binary.LittleEndian.Uint64(payload[43:51]))

	return models.Tick{
		Token:     token,
		Symbol:    f.symbols[token],
		LTP:       float64(pricePaise) / 100,
		Sequence:  sequence,
		Timestamp: time.UnixMilli(timestampMs),
	}, true
}
