package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"angelone-web/internal/broker"
	apperrors "angelone-web/internal/errors"
)

// fakeSmartAPI serves canned candle and LTP envelopes.
type fakeSmartAPI struct {
	candleEnv *broker.Envelope
	candleErr error
	ltpEnv    *broker.Envelope
	ltpErr    error

	lastParams broker.CandleParams
}

func (f *fakeSmartAPI) GetCandleData(ctx context.Context, params broker.CandleParams) (*broker.Envelope, error) {
	f.lastParams = params
	return f.candleEnv, f.candleErr
}

func (f *fakeSmartAPI) GetLTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (*broker.Envelope, error) {
	return f.ltpEnv, f.ltpErr
}

func (f *fakeSmartAPI) GenerateSession(ctx context.Context, clientID, password, totp string) (*broker.Envelope, error) {
	return nil, errors.New("unexpected GenerateSession call")
}

func (f *fakeSmartAPI) PlaceOrder(ctx context.Context, params broker.OrderParams) (*broker.Envelope, error) {
	return nil, errors.New("unexpected PlaceOrder call")
}

func (f *fakeSmartAPI) OrderBook(ctx context.Context) (*broker.Envelope, error) {
	return nil, errors.New("unexpected OrderBook call")
}

func (f *fakeSmartAPI) TerminateSession(ctx context.Context, clientID string) (*broker.Envelope, error) {
	return nil, errors.New("unexpected TerminateSession call")
}

var _ broker.SmartAPI = (*fakeSmartAPI)(nil)

func testRequest() HistoricalRequest {
	return HistoricalRequest{
		Symbol:   "SBIN",
		Token:    "3045",
		Exchange: "NSE",
		Interval: "one_day",
		From:     "2024-06-01 09:15",
		To:       "2024-06-03 15:30",
	}
}

func TestFetchCandlesSuccess(t *testing.T) {
	fake := &fakeSmartAPI{
		candleEnv: &broker.Envelope{
			Status: true,
			Data: json.RawMessage(`[
				["2024-06-03T09:15:00+05:30", 830.0, 835.5, 828.25, 833.1, 1200345],
				["2024-06-03T09:16:00+05:30", 833.1, 834.0, 831.0, 832.4, 890211]
			]`),
		},
	}
	f := NewFetcher(zerolog.Nop())

	resp, err := f.FetchCandles(context.Background(), fake, testRequest())
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if len(resp.Candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(resp.Candles))
	}

	first := resp.Candles[0]
	if first.Open != 830.0 || first.High != 835.5 || first.Low != 828.25 || first.Close != 833.1 {
		t.Errorf("first candle OHLC: %+v", first)
	}
	if first.Volume != 1200345 {
		t.Errorf("volume = %d", first.Volume)
	}

	loc := time.FixedZone("IST", 5*3600+1800)
	want := time.Date(2024, 6, 3, 9, 15, 0, 0, loc)
	if !first.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, want)
	}

	// The interval is upper-cased before hitting the wire.
	if fake.lastParams.Interval != "ONE_DAY" {
		t.Errorf("interval sent = %q", fake.lastParams.Interval)
	}
}

func TestFetchCandlesNoConnection(t *testing.T) {
	f := NewFetcher(zerolog.Nop())
	_, err := f.FetchCandles(context.Background(), nil, testRequest())
	if !errors.Is(err, apperrors.ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
}

// The three broker failure shapes must stay distinguishable: a rejected
// request, a well-formed envelope with the wrong shape, and a body that is
// not a response object at all.
func TestFetchCandlesFailureShapes(t *testing.T) {
	t.Run("broker rejected", func(t *testing.T) {
		fake := &fakeSmartAPI{
			candleEnv: &broker.Envelope{Status: false, Message: "Invalid Token", ErrorCode: "AG8001"},
		}
		_, err := NewFetcher(zerolog.Nop()).FetchCandles(context.Background(), fake, testRequest())

		var brokerErr *apperrors.BrokerError
		if !errors.As(err, &brokerErr) {
			t.Fatalf("expected BrokerError, got %v", err)
		}
	})

	t.Run("status true without data", func(t *testing.T) {
		fake := &fakeSmartAPI{candleEnv: &broker.Envelope{Status: true}}
		_, err := NewFetcher(zerolog.Nop()).FetchCandles(context.Background(), fake, testRequest())

		var malformed *apperrors.MalformedResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedResponseError, got %v", err)
		}
		if malformed.Kind != "unexpected shape" {
			t.Errorf("kind = %q", malformed.Kind)
		}
	})

	t.Run("invalid response type from transport", func(t *testing.T) {
		fake := &fakeSmartAPI{
			candleErr: apperrors.NewMalformedResponseError("invalid response type", "<html>..."),
		}
		_, err := NewFetcher(zerolog.Nop()).FetchCandles(context.Background(), fake, testRequest())

		var malformed *apperrors.MalformedResponseError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedResponseError, got %v", err)
		}
		if malformed.Kind != "invalid response type" {
			t.Errorf("kind = %q", malformed.Kind)
		}
	})
}

func TestFetchCandlesBadRows(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not a list", `{"candles": []}`},
		{"short row", `[["2024-06-03T09:15:00+05:30", 830.0]]`},
		{"non-numeric price", `[["2024-06-03T09:15:00+05:30", "abc", 1, 1, 1, 1]]`},
		{"bad timestamp", `[["yesterday", 1, 1, 1, 1, 1]]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSmartAPI{
				candleEnv: &broker.Envelope{Status: true, Data: json.RawMessage(tc.data)},
			}
			_, err := NewFetcher(zerolog.Nop()).FetchCandles(context.Background(), fake, testRequest())

			var malformed *apperrors.MalformedResponseError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedResponseError, got %v", err)
			}
		})
	}
}

func TestFetchLTP(t *testing.T) {
	fake := &fakeSmartAPI{
		ltpEnv: &broker.Envelope{
			Status: true,
			Data:   json.RawMessage(`{"exchange": "NSE", "tradingsymbol": "SBIN-EQ", "symboltoken": "3045", "ltp": 833.45}`),
		},
	}
	f := NewFetcher(zerolog.Nop())

	ltp, err := f.FetchLTP(context.Background(), fake, "NSE", "SBIN-EQ", "3045")
	if err != nil {
		t.Fatalf("FetchLTP: %v", err)
	}
	if ltp.LTP != 833.45 {
		t.Errorf("ltp = %v", ltp.LTP)
	}
}

func TestFetchLTPRejected(t *testing.T) {
	fake := &fakeSmartAPI{
		ltpEnv: &broker.Envelope{Status: false, Message: "Invalid Token"},
	}
	f := NewFetcher(zerolog.Nop())

	_, err := f.FetchLTP(context.Background(), fake, "NSE", "SBIN-EQ", "3045")
	var brokerErr *apperrors.BrokerError
	if !errors.As(err, &brokerErr) {
		t.Fatalf("expected BrokerError, got %v", err)
	}
}
