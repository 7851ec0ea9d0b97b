// Package models provides domain models for the trading front end.
package models

import "time"

// Exchange represents a stock exchange segment as named by SmartAPI.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
	CDS Exchange = "CDS" // Currency
	MCX Exchange = "MCX" // Commodity
)

// TransactionType represents the side of an order.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket         OrderType = "MARKET"
	OrderTypeLimit          OrderType = "LIMIT"
	OrderTypeStopLossLimit  OrderType = "STOPLOSS_LIMIT"
	OrderTypeStopLossMarket OrderType = "STOPLOSS_MARKET"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductDelivery     ProductType = "DELIVERY"
	ProductIntraday     ProductType = "INTRADAY"
	ProductMargin       ProductType = "MARGIN"
	ProductCarryForward ProductType = "CARRYFORWARD"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Tick represents a real-time quote update from the feed.
type Tick struct {
	Token     string    `json:"token"`
	Symbol    string    `json:"symbol"`
	LTP       float64   `json:"ltp"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// StockEntry maps a trading symbol to the exchange-specific identifiers
// SmartAPI requires. The directory key is always the upper-cased symbol.
type StockEntry struct {
	Symbol   string `json:"symbol"`
	Token    string `json:"token"`
	Exchange string `json:"exchange"`
}
