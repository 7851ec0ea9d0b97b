// Package trading implements order placement and status checks.
package trading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"angelone-web/internal/broker"
	apperrors "angelone-web/internal/errors"
	"angelone-web/internal/models"
	"angelone-web/internal/store"
)

// Submitter validates order specs and submits them through a SmartAPI
// client supplied per call.
type Submitter struct {
	audit  store.AuditLog
	logger zerolog.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithAuditLog enables audit logging of order submissions.
func WithAuditLog(audit store.AuditLog) SubmitterOption {
	return func(s *Submitter) { s.audit = audit }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) SubmitterOption {
	return func(s *Submitter) { s.logger = logger }
}

// NewSubmitter creates a Submitter.
func NewSubmitter(opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		audit:  store.NopAudit{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildOrderParams validates and normalizes an order spec into the fixed
// SmartAPI envelope: variety NORMAL, duration DAY, squareoff and stoploss
// "0". MARKET orders always carry price "0"; LIMIT orders require a price.
func BuildOrderParams(spec models.OrderSpec) (broker.OrderParams, error) {
	if spec.TradingSymbol == "" || spec.SymbolToken == "" || spec.TransactionType == "" ||
		spec.Exchange == "" || spec.OrderType == "" || spec.ProductType == "" || spec.Quantity == "" {
		return broker.OrderParams{}, apperrors.ErrMissingParameters
	}

	orderType := strings.ToUpper(strings.TrimSpace(spec.OrderType))
	price := strings.TrimSpace(spec.Price)

	if orderType == string(models.OrderTypeLimit) && price == "" {
		return broker.OrderParams{}, apperrors.ErrPriceRequired
	}
	if orderType == string(models.OrderTypeMarket) {
		price = "0"
	}

	return broker.OrderParams{
		Variety:         "NORMAL",
		TradingSymbol:   strings.TrimSpace(spec.TradingSymbol),
		SymbolToken:     strings.TrimSpace(spec.SymbolToken),
		TransactionType: strings.ToUpper(strings.TrimSpace(spec.TransactionType)),
		Exchange:        strings.ToUpper(strings.TrimSpace(spec.Exchange)),
		OrderType:       orderType,
		ProductType:     strings.ToUpper(strings.TrimSpace(spec.ProductType)),
		Duration:        "DAY",
		Price:           price,
		SquareOff:       "0",
		StopLoss:        "0",
		Quantity:        strings.TrimSpace(spec.Quantity),
	}, nil
}

// PlaceOrder validates the spec and submits the order. A nil client fails
// with ErrNoConnection before any broker call. All failures are returned as
// error values; this boundary never panics.
func (s *Submitter) PlaceOrder(ctx context.Context, client broker.SmartAPI, clientID string, spec models.OrderSpec) (*models.OrderResult, error) {
	if client == nil {
		s.logger.Error().Msg("PlaceOrder called without an API connection")
		return nil, apperrors.ErrNoConnection
	}

	params, err := BuildOrderParams(spec)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("symbol", params.TradingSymbol).
		Str("side", params.TransactionType).
		Str("type", params.OrderType).
		Str("quantity", params.Quantity).
		Msg("Placing order")

	env, err := client.PlaceOrder(ctx, params)
	if err != nil {
		s.recordOrder(ctx, clientID, params, "", false, err.Error())
		return nil, apperrors.Wrap(err, "order placement failed")
	}
	if !env.Status || !env.HasData() {
		message := env.Message
		if message == "" {
			message = "unknown error"
		}
		s.logger.Error().Str("errorcode", env.ErrorCode).Str("message", message).Msg("Order placement rejected")
		s.recordOrder(ctx, clientID, params, "", false, message)
		return nil, apperrors.NewBrokerError(env.ErrorCode, fmt.Sprintf("order placement failed: %s", message), nil)
	}

	var data broker.OrderData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.OrderID == "" {
		s.recordOrder(ctx, clientID, params, "", false, "order id missing in response")
		return nil, apperrors.NewMalformedResponseError("unexpected shape", "order id missing in broker response")
	}

	s.logger.Info().Str("order_id", data.OrderID).Msg("Order placed successfully")
	s.recordOrder(ctx, clientID, params, data.OrderID, true, "order placed")

	return &models.OrderResult{
		OrderID: data.OrderID,
		Message: fmt.Sprintf("Order placed successfully. Order ID: %s", data.OrderID),
	}, nil
}

// CheckOrderStatus fetches the order book and scans for the given order id.
// The first string-equal match wins. Not-found is distinguished from a
// failed order-book fetch.
func (s *Submitter) CheckOrderStatus(ctx context.Context, client broker.SmartAPI, orderID string) (*models.OrderStatus, error) {
	if client == nil {
		return nil, apperrors.ErrNoConnection
	}
	if orderID == "" {
		return nil, apperrors.ErrOrderIDRequired
	}

	env, err := client.OrderBook(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to fetch order book")
	}
	if !env.Status {
		message := env.Message
		if message == "" {
			message = "unknown error"
		}
		return nil, apperrors.NewBrokerError(env.ErrorCode, fmt.Sprintf("failed to fetch order book: %s", message), nil)
	}
	if !env.HasData() {
		// Empty order book is a valid response; the id is simply absent.
		return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
	}

	var entries []broker.OrderBookEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		return nil, apperrors.NewMalformedResponseError("unexpected shape", "undecodable order book data")
	}

	for _, entry := range entries {
		if entry.OrderID == orderID {
			status := entry.Status
			if status == "" {
				status = "N/A"
			}
			s.logger.Info().Str("order_id", orderID).Str("status", status).Msg("Order status")
			return &models.OrderStatus{
				OrderID: orderID,
				Status:  status,
				Details: entry.Raw,
			}, nil
		}
	}

	s.logger.Warn().Str("order_id", orderID).Msg("Order not found in order book")
	return nil, apperrors.Wrapf(apperrors.ErrOrderNotFound, "order %s", orderID)
}

func (s *Submitter) recordOrder(ctx context.Context, clientID string, params broker.OrderParams, orderID string, success bool, message string) {
	err := s.audit.RecordOrder(ctx, clientID, params.TradingSymbol, params.TransactionType,
		params.Quantity, params.Price, orderID, success, message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to audit order event")
	}
}
