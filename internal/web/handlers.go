package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "angelone-web/internal/errors"
	"angelone-web/internal/logging"
	"angelone-web/internal/marketdata"
	"angelone-web/internal/models"
	"angelone-web/internal/session"
	"angelone-web/internal/stream"
)

type loginPage struct {
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string
	Error      string
	Message    string
}

type dashboardPage struct {
	ClientID string
}

type tradingPage struct {
	ClientID  string
	Symbols   []string
	Error     string
	Result    string
	Status    *models.OrderStatus
	StatusRaw string
	LTPSymbol string
	LTP       float64
}

type historicalPage struct {
	ClientID string
	Symbols  []string
	Error    string
	Symbol   string
	Candles  []models.Candle
	RawJSON  string
}

type streamingPage struct {
	ClientID string
	Symbols  []string
	Error    string
}

// handleIndex serves the login form and performs the login. A failed login
// always clears the session so no partial state survives.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page := loginPage{
		APIKey:     s.envDefaults["API_KEY"],
		ClientID:   s.envDefaults["CLIENT_ID"],
		Password:   s.envDefaults["PASSWORD"],
		TOTPSecret: s.envDefaults["TOTP_SECRET"],
	}

	if r.Method != http.MethodPost {
		if state := s.sessions.Get(r); state.LoggedIn {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		s.render(w, "index.html", page)
		return
	}

	creds := models.Credentials{
		APIKey:     strings.TrimSpace(r.FormValue("api_key")),
		ClientID:   strings.TrimSpace(r.FormValue("client_id")),
		Password:   r.FormValue("password"),
		TOTPSecret: strings.TrimSpace(r.FormValue("totp_secret")),
	}

	logger := logging.FromContext(r.Context())

	result, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		if clearErr := s.sessions.Clear(w, r); clearErr != nil {
			logger.Warn().Err(clearErr).Msg("Failed to clear session after login failure")
		}
		page.APIKey = creds.APIKey
		page.ClientID = creds.ClientID
		page.Error = err.Error()
		s.render(w, "index.html", page)
		return
	}

	state := &session.State{}
	state.Credentials = creds
	state.Tokens = result.Tokens
	state.LoggedIn = true
	if err := s.sessions.Save(w, r, state); err != nil {
		logger.Error().Err(err).Msg("Failed to save session")
		page.Error = "failed to establish session"
		s.render(w, "index.html", page)
		return
	}

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Get(r)
	s.render(w, "dashboard.html", dashboardPage{ClientID: state.Credentials.ClientID})
}

// handleTrading serves the order form and dispatches the place, status and
// ltp actions. The symbol's token and exchange are always re-resolved from
// the directory; identifiers submitted by the browser are ignored.
func (s *Server) handleTrading(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Get(r)
	page := tradingPage{
		ClientID: state.Credentials.ClientID,
		Symbols:  s.sortedSymbols(),
	}

	if r.Method != http.MethodPost {
		s.render(w, "trading.html", page)
		return
	}

	logger := logging.WithClient(logging.FromContext(r.Context()), state.Credentials.ClientID)
	client := s.newClient(state.Credentials.APIKey, state.Tokens.AuthToken)

	switch r.FormValue("action") {
	case "status":
		status, err := s.orders.CheckOrderStatus(r.Context(), client, strings.TrimSpace(r.FormValue("order_id")))
		if err != nil {
			page.Error = err.Error()
			break
		}
		orderLogger := logging.WithOrderID(logger, status.OrderID)
		orderLogger.Info().Str("status", status.Status).Msg("Order status checked")
		page.Status = status
		if raw, err := json.MarshalIndent(status.Details, "", "  "); err == nil {
			page.StatusRaw = string(raw)
		}

	case "ltp":
		symbol := r.FormValue("symbol")
		entry, ok := s.directory.Lookup(symbol)
		if !ok {
			page.Error = symbolNotFound(symbol).Error()
			break
		}
		ltp, err := s.market.FetchLTP(r.Context(), client, entry.Exchange, entry.Symbol, entry.Token)
		if err != nil {
			page.Error = err.Error()
			break
		}
		page.LTPSymbol = strings.ToUpper(entry.Symbol)
		page.LTP = ltp.LTP

	default:
		symbol := r.FormValue("symbol")
		entry, ok := s.directory.Lookup(symbol)
		if !ok {
			page.Error = symbolNotFound(symbol).Error()
			break
		}
		spec := models.OrderSpec{
			TradingSymbol:   entry.Symbol,
			SymbolToken:     entry.Token,
			Exchange:        entry.Exchange,
			TransactionType: r.FormValue("transaction_type"),
			OrderType:       r.FormValue("order_type"),
			ProductType:     r.FormValue("product_type"),
			Quantity:        strings.TrimSpace(r.FormValue("quantity")),
			Price:           strings.TrimSpace(r.FormValue("price")),
		}
		result, err := s.orders.PlaceOrder(r.Context(), client, state.Credentials.ClientID, spec)
		if err != nil {
			page.Error = err.Error()
			break
		}
		logging.LogOrder(logger, result.OrderID, entry.Symbol,
			strings.ToUpper(strings.TrimSpace(spec.TransactionType)), "placed")
		page.Result = result.Message
	}

	s.render(w, "trading.html", page)
}

// handleHistorical serves the candle-data form and renders fetched candles
// along with the raw broker payload.
func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Get(r)
	page := historicalPage{
		ClientID: state.Credentials.ClientID,
		Symbols:  s.sortedSymbols(),
	}

	if r.Method != http.MethodPost {
		s.render(w, "historical.html", page)
		return
	}

	symbol := r.FormValue("symbol")
	entry, ok := s.directory.Lookup(symbol)
	if !ok {
		page.Error = symbolNotFound(symbol).Error()
		s.render(w, "historical.html", page)
		return
	}

	from, err := combineDateTime(r.FormValue("from_date"), r.FormValue("from_hour"), r.FormValue("from_minute"))
	if err != nil {
		page.Error = fmt.Sprintf("invalid from date: %v", err)
		s.render(w, "historical.html", page)
		return
	}
	to, err := combineDateTime(r.FormValue("to_date"), r.FormValue("to_hour"), r.FormValue("to_minute"))
	if err != nil {
		page.Error = fmt.Sprintf("invalid to date: %v", err)
		s.render(w, "historical.html", page)
		return
	}

	client := s.newClient(state.Credentials.APIKey, state.Tokens.AuthToken)
	resp, err := s.market.FetchCandles(r.Context(), client, marketdata.HistoricalRequest{
		Symbol:   entry.Symbol,
		Token:    entry.Token,
		Exchange: entry.Exchange,
		Interval: r.FormValue("interval"),
		From:     from,
		To:       to,
	})
	if err != nil {
		page.Error = err.Error()
		s.render(w, "historical.html", page)
		return
	}

	page.Symbol = resp.Symbol
	page.Candles = resp.Candles
	if raw, err := json.MarshalIndent(resp.Raw, "", "  "); err == nil {
		page.RawJSON = string(raw)
	}
	s.render(w, "historical.html", page)
}

// symbolNotFound builds the directory-miss error shown on the page.
func symbolNotFound(symbol string) error {
	return apperrors.Wrapf(apperrors.ErrSymbolNotFound, "symbol %q", strings.ToUpper(strings.TrimSpace(symbol)))
}

// combineDateTime assembles the SmartAPI "2006-01-02 15:04" stamp from the
// separate date, hour and minute form fields.
func combineDateTime(date, hour, minute string) (string, error) {
	date = strings.TrimSpace(date)
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", apperrors.NewValidationError("date", date, "must be YYYY-MM-DD")
	}
	h, err := strconv.Atoi(strings.TrimSpace(hour))
	if err != nil || h < 0 || h > 23 {
		return "", apperrors.NewValidationError("hour", hour, "must be 0-23")
	}
	m, err := strconv.Atoi(strings.TrimSpace(minute))
	if err != nil || m < 0 || m > 59 {
		return "", apperrors.NewValidationError("minute", minute, "must be 0-59")
	}
	return fmt.Sprintf("%s %02d:%02d", date, h, m), nil
}

// handleStreaming starts the quote feed for the directory's symbols and
// serves the live-quote page.
func (s *Server) handleStreaming(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Get(r)
	page := streamingPage{
		ClientID: state.Credentials.ClientID,
		Symbols:  s.sortedSymbols(),
	}

	if err := s.ensureFeed(state); err != nil {
		page.Error = err.Error()
	}
	s.render(w, "streaming.html", page)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	s.push.HandleWebSocket(w, r)
}

// handleLogout terminates the broker session, stops the feed and destroys
// the cookie session. The session is cleared even when the broker call
// fails; the error is only reported.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	state := s.sessions.Get(r)

	err := s.auth.Logout(r.Context(), state.Tokens.AuthToken, state.Credentials.ClientID, state.Credentials.APIKey)

	s.stopFeed()
	if clearErr := s.sessions.Clear(w, r); clearErr != nil {
		logoutLogger := logging.FromContext(r.Context())
		logoutLogger.Warn().Err(clearErr).Msg("Failed to clear session on logout")
	}

	page := loginPage{
		APIKey:     s.envDefaults["API_KEY"],
		ClientID:   s.envDefaults["CLIENT_ID"],
		Password:   s.envDefaults["PASSWORD"],
		TOTPSecret: s.envDefaults["TOTP_SECRET"],
	}
	if err != nil {
		page.Error = err.Error()
	} else {
		page.Message = "Logout Successful"
	}
	s.render(w, "index.html", page)
}

// ensureFeed starts the smart-stream feed with the session's tokens if it is
// not already running.
func (s *Server) ensureFeed(state *session.State) error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	if s.feed != nil && s.feed.IsStarted() {
		return nil
	}
	if s.directory.Len() == 0 {
		return fmt.Errorf("stock directory is empty, nothing to stream")
	}

	entries := make([]models.StockEntry, 0, s.directory.Len())
	for _, symbol := range s.directory.Symbols() {
		if entry, ok := s.directory.Lookup(symbol); ok {
			entries = append(entries, entry)
		}
	}

	opts := []stream.FeedOption{stream.WithFeedLogger(s.logger)}
	if s.feedURL != "" {
		opts = append(opts, stream.WithFeedURL(s.feedURL))
	}
	feed := stream.NewFeed(stream.FeedAuth{
		AuthToken: state.Tokens.AuthToken,
		APIKey:    state.Credentials.APIKey,
		ClientID:  state.Credentials.ClientID,
		FeedToken: state.Tokens.FeedToken,
	}, s.hub, opts...)

	if err := feed.Start(context.Background(), entries); err != nil {
		return err
	}
	s.feed = feed
	return nil
}

func (s *Server) stopFeed() {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.feed != nil {
		s.feed.Stop()
		s.feed = nil
	}
}

func (s *Server) sortedSymbols() []string {
	symbols := s.directory.Symbols()
	sort.Strings(symbols)
	return symbols
}
