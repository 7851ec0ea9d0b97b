// Package broker provides the SmartAPI integration interface and client.
package broker

import (
	"context"
	"encoding/json"
)

// SmartAPI defines the narrow surface of the Angel One SmartAPI that the
// application consumes. Implementations must be safe for use from a single
// request goroutine; clients are created fresh per request and not shared.
type SmartAPI interface {
	// GenerateSession performs the password+TOTP login for a client code.
	GenerateSession(ctx context.Context, clientID, password, totp string) (*Envelope, error)

	// PlaceOrder submits an order envelope and returns the broker response.
	PlaceOrder(ctx context.Context, params OrderParams) (*Envelope, error)

	// OrderBook fetches the unfiltered list of orders for the session.
	OrderBook(ctx context.Context) (*Envelope, error)

	// GetCandleData requests historical OHLC candles.
	GetCandleData(ctx context.Context, params CandleParams) (*Envelope, error)

	// GetLTP fetches the last traded price for an instrument.
	GetLTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (*Envelope, error)

	// TerminateSession logs the client code out of the remote session.
	TerminateSession(ctx context.Context, clientID string) (*Envelope, error)
}

// Envelope is the uniform SmartAPI response wrapper. Data is kept raw so
// callers can decode the operation-specific payload and still report shape
// problems precisely.
type Envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// HasData reports whether the envelope carries a non-null data payload.
func (e *Envelope) HasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// OrderParams is the order envelope SmartAPI expects. Every field is a
// string per the broker wire contract, including quantity and prices.
type OrderParams struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Price           string `json:"price"`
	SquareOff       string `json:"squareoff"`
	StopLoss        string `json:"stoploss"`
	Quantity        string `json:"quantity"`
}

// CandleParams is a historical candle-data request. Dates are strings in
// "2006-01-02 15:04" form.
type CandleParams struct {
	Exchange    string `json:"exchange"`
	SymbolToken string `json:"symboltoken"`
	Interval    string `json:"interval"`
	FromDate    string `json:"fromdate"`
	ToDate      string `json:"todate"`
}

// SessionData is the payload of a successful GenerateSession response.
type SessionData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

// OrderData is the payload of a successful PlaceOrder response.
type OrderData struct {
	Script  string `json:"script"`
	OrderID string `json:"orderid"`
}

// OrderBookEntry is a single order record from the order book listing.
// SmartAPI returns many more fields; only the ones the application reads are
// decoded, with the remainder preserved in Raw for display.
type OrderBookEntry struct {
	OrderID       string `json:"orderid"`
	Status        string `json:"status"`
	TradingSymbol string `json:"tradingsymbol"`

	Raw map[string]interface{} `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps the full record in Raw.
func (o *OrderBookEntry) UnmarshalJSON(data []byte) error {
	type alias OrderBookEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = OrderBookEntry(a)
	return json.Unmarshal(data, &o.Raw)
}

// LTPData is the payload of a successful GetLTP response.
type LTPData struct {
	Exchange      string  `json:"exchange"`
	TradingSymbol string  `json:"tradingsymbol"`
	SymbolToken   string  `json:"symboltoken"`
	LTP           float64 `json:"ltp"`
}
