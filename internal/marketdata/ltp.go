package marketdata

import (
	"context"
	"encoding/json"
	"fmt"

	"angelone-web/internal/broker"
	apperrors "angelone-web/internal/errors"
)

// FetchLTP fetches the last traded price for an instrument.
func (f *Fetcher) FetchLTP(ctx context.Context, client broker.SmartAPI, exchange, symbol, token string) (*broker.LTPData, error) {
	if client == nil {
		return nil, apperrors.ErrNoConnection
	}

	env, err := client.GetLTP(ctx, exchange, symbol, token)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to fetch LTP for %s", symbol)
	}
	if !env.Status || !env.HasData() {
		message := env.Message
		if message == "" {
			message = "unknown error"
		}
		return nil, apperrors.NewBrokerError(env.ErrorCode, fmt.Sprintf("failed to fetch LTP: %s", message), nil)
	}

	var data broker.LTPData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, apperrors.NewMalformedResponseError("unexpected shape", "undecodable LTP data")
	}

	f.logger.Debug().Str("symbol", symbol).Float64("ltp", data.LTP).Msg("LTP fetched")
	return &data, nil
}
