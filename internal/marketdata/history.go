// Package marketdata implements historical candle and quote retrieval.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"angelone-web/internal/broker"
	apperrors "angelone-web/internal/errors"
	"angelone-web/internal/models"
)

// DateTimeLayout is the date-time format SmartAPI expects in candle
// requests.
const DateTimeLayout = "2006-01-02 15:04"

// HistoricalRequest describes a candle-data request before normalization.
type HistoricalRequest struct {
	Symbol   string
	Token    string
	Exchange string
	Interval string
	From     string // "2006-01-02 15:04"
	To       string // "2006-01-02 15:04"
}

// CandleResponse carries the parsed candles along with the raw broker data
// for verbatim JSON rendering.
type CandleResponse struct {
	Symbol  string          `json:"symbol"`
	Candles []models.Candle `json:"candles"`
	Raw     json.RawMessage `json:"-"`
}

// Fetcher retrieves historical data through a per-request SmartAPI client.
type Fetcher struct {
	logger zerolog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(logger zerolog.Logger) *Fetcher {
	return &Fetcher{logger: logger}
}

// FetchCandles requests candle data. Exchange and token are trimmed and the
// interval upper-cased before submission. The three broker failure shapes
// (status=false, unexpected shape, invalid response type) surface as
// distinct errors so the caller can report them separately.
func (f *Fetcher) FetchCandles(ctx context.Context, client broker.SmartAPI, req HistoricalRequest) (*CandleResponse, error) {
	if client == nil {
		f.logger.Error().Msg("FetchCandles called without an API connection")
		return nil, apperrors.ErrNoConnection
	}

	params := broker.CandleParams{
		Exchange:    strings.TrimSpace(req.Exchange),
		SymbolToken: strings.TrimSpace(req.Token),
		Interval:    strings.ToUpper(strings.TrimSpace(req.Interval)),
		FromDate:    req.From,
		ToDate:      req.To,
	}
	f.logger.Info().
		Str("symbol", req.Symbol).
		Str("interval", params.Interval).
		Str("from", params.FromDate).
		Str("to", params.ToDate).
		Msg("Sending historical data request")

	env, err := client.GetCandleData(ctx, params)
	if err != nil {
		// decodeEnvelope already classifies invalid response types; transport
		// errors pass through wrapped.
		return nil, apperrors.Wrapf(err, "failed to fetch historical data for %s", req.Symbol)
	}
	if !env.Status {
		message := env.Message
		if message == "" {
			message = "unknown error"
		}
		f.logger.Error().Str("symbol", req.Symbol).Str("message", message).Msg("Historical data fetch rejected")
		return nil, apperrors.NewBrokerError(env.ErrorCode, fmt.Sprintf("failed to fetch historical data: %s", message), nil)
	}
	if !env.HasData() {
		f.logger.Error().Str("symbol", req.Symbol).Msg("Historical data response missing data key")
		return nil, apperrors.NewMalformedResponseError("unexpected shape", "candle response status true but data missing")
	}

	candles, err := parseCandles(env.Data)
	if err != nil {
		return nil, apperrors.NewMalformedResponseError("unexpected shape", err.Error())
	}

	f.logger.Info().Str("symbol", req.Symbol).Int("candles", len(candles)).Msg("Historical data fetched")
	return &CandleResponse{
		Symbol:  strings.TrimSpace(req.Symbol),
		Candles: candles,
		Raw:     env.Data,
	}, nil
}

// parseCandles decodes the SmartAPI candle rows, which arrive as arrays of
// [timestamp, open, high, low, close, volume].
func parseCandles(data json.RawMessage) ([]models.Candle, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("candle data is not a list of rows")
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("candle row %d has %d fields", i, len(row))
		}
		var ts string
		var ohlc [4]float64
		var volume int64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return nil, fmt.Errorf("candle row %d has no timestamp", i)
		}
		for j := 0; j < 4; j++ {
			if err := json.Unmarshal(row[j+1], &ohlc[j]); err != nil {
				return nil, fmt.Errorf("candle row %d has a non-numeric price", i)
			}
		}
		if err := json.Unmarshal(row[5], &volume); err != nil {
			return nil, fmt.Errorf("candle row %d has a non-numeric volume", i)
		}

		timestamp, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("candle row %d has an unparseable timestamp", i)
		}
		candles = append(candles, models.Candle{
			Timestamp: timestamp,
			Open:      ohlc[0],
			High:      ohlc[1],
			Low:       ohlc[2],
			Close:     ohlc[3],
			Volume:    volume,
		})
	}
	return candles, nil
}
