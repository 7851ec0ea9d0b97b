package trading

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"angelone-web/internal/broker"
	apperrors "angelone-web/internal/errors"
	"angelone-web/internal/models"
)

// fakeSmartAPI returns canned envelopes for the order endpoints.
type fakeSmartAPI struct {
	placeEnv *broker.Envelope
	placeErr error
	bookEnv  *broker.Envelope
	bookErr  error

	placeCalls int
	lastParams broker.OrderParams
}

func (f *fakeSmartAPI) PlaceOrder(ctx context.Context, params broker.OrderParams) (*broker.Envelope, error) {
	f.placeCalls++
	f.lastParams = params
	return f.placeEnv, f.placeErr
}

func (f *fakeSmartAPI) OrderBook(ctx context.Context) (*broker.Envelope, error) {
	return f.bookEnv, f.bookErr
}

func (f *fakeSmartAPI) GenerateSession(ctx context.Context, clientID, password, totp string) (*broker.Envelope, error) {
	return nil, errors.New("unexpected GenerateSession call")
}

func (f *fakeSmartAPI) GetCandleData(ctx context.Context, params broker.CandleParams) (*broker.Envelope, error) {
	return nil, errors.New("unexpected GetCandleData call")
}

func (f *fakeSmartAPI) GetLTP(ctx context.Context, exchange, tradingSymbol, symbolToken string) (*broker.Envelope, error) {
	return nil, errors.New("unexpected GetLTP call")
}

func (f *fakeSmartAPI) TerminateSession(ctx context.Context, clientID string) (*broker.Envelope, error) {
	return nil, errors.New("unexpected TerminateSession call")
}

var _ broker.SmartAPI = (*fakeSmartAPI)(nil)

func validSpec() models.OrderSpec {
	return models.OrderSpec{
		TradingSymbol:   "SBIN-EQ",
		SymbolToken:     "3045",
		TransactionType: "BUY",
		Exchange:        "NSE",
		OrderType:       "MARKET",
		ProductType:     "INTRADAY",
		Quantity:        "1",
	}
}

func TestBuildOrderParams(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*models.OrderSpec)
		wantErr error
		check   func(*testing.T, broker.OrderParams)
	}{
		{
			name:   "market order forces price zero",
			mutate: func(s *models.OrderSpec) { s.Price = "123.45" },
			check: func(t *testing.T, p broker.OrderParams) {
				if p.Price != "0" {
					t.Errorf("price = %q, want 0", p.Price)
				}
			},
		},
		{
			name: "limit order keeps price",
			mutate: func(s *models.OrderSpec) {
				s.OrderType = "LIMIT"
				s.Price = "750.50"
			},
			check: func(t *testing.T, p broker.OrderParams) {
				if p.Price != "750.50" {
					t.Errorf("price = %q, want 750.50", p.Price)
				}
			},
		},
		{
			name: "limit order without price",
			mutate: func(s *models.OrderSpec) {
				s.OrderType = "LIMIT"
				s.Price = ""
			},
			wantErr: apperrors.ErrPriceRequired,
		},
		{
			name:    "missing symbol",
			mutate:  func(s *models.OrderSpec) { s.TradingSymbol = "" },
			wantErr: apperrors.ErrMissingParameters,
		},
		{
			name:    "missing token",
			mutate:  func(s *models.OrderSpec) { s.SymbolToken = "" },
			wantErr: apperrors.ErrMissingParameters,
		},
		{
			name:    "missing quantity",
			mutate:  func(s *models.OrderSpec) { s.Quantity = "" },
			wantErr: apperrors.ErrMissingParameters,
		},
		{
			name: "lower-cased inputs are normalized",
			mutate: func(s *models.OrderSpec) {
				s.TransactionType = "buy"
				s.Exchange = "nse"
				s.OrderType = "market"
				s.ProductType = "intraday"
			},
			check: func(t *testing.T, p broker.OrderParams) {
				if p.TransactionType != "BUY" || p.Exchange != "NSE" ||
					p.OrderType != "MARKET" || p.ProductType != "INTRADAY" {
					t.Errorf("fields not upper-cased: %+v", p)
				}
			},
		},
		{
			name:   "fixed envelope fields",
			mutate: func(s *models.OrderSpec) {},
			check: func(t *testing.T, p broker.OrderParams) {
				if p.Variety != "NORMAL" || p.Duration != "DAY" || p.SquareOff != "0" || p.StopLoss != "0" {
					t.Errorf("envelope fields: %+v", p)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := validSpec()
			tc.mutate(&spec)

			params, err := BuildOrderParams(spec)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildOrderParams: %v", err)
			}
			tc.check(t, params)
		})
	}
}

func TestOrderParamsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	nonEmptyAlpha := gen.AlphaString().SuchThat(func(s string) bool { return s != "" })

	properties.Property("market orders always submit price zero", prop.ForAll(
		func(symbol, token string, qty int, price string) bool {
			params, err := BuildOrderParams(models.OrderSpec{
				TradingSymbol:   symbol,
				SymbolToken:     token,
				TransactionType: "BUY",
				Exchange:        "NSE",
				OrderType:       "MARKET",
				ProductType:     "INTRADAY",
				Quantity:        strconv.Itoa(qty),
				Price:           price,
			})
			return err == nil && params.Price == "0"
		},
		nonEmptyAlpha,
		nonEmptyAlpha,
		gen.IntRange(1, 100000),
		gen.AlphaString(),
	))

	properties.Property("side exchange and type are upper-cased", prop.ForAll(
		func(symbol string, buy bool, qty int) bool {
			side := "buy"
			if !buy {
				side = "sell"
			}
			params, err := BuildOrderParams(models.OrderSpec{
				TradingSymbol:   symbol,
				SymbolToken:     "3045",
				TransactionType: side,
				Exchange:        "nse",
				OrderType:       "market",
				ProductType:     "delivery",
				Quantity:        strconv.Itoa(qty),
			})
			if err != nil {
				return false
			}
			return params.TransactionType == strings.ToUpper(side) &&
				params.Exchange == "NSE" &&
				params.OrderType == "MARKET" &&
				params.ProductType == "DELIVERY"
		},
		nonEmptyAlpha,
		gen.Bool(),
		gen.IntRange(1, 100000),
	))

	properties.TestingRun(t)
}

func TestPlaceOrderNoConnection(t *testing.T) {
	s := NewSubmitter()
	_, err := s.PlaceOrder(context.Background(), nil, "A123456", validSpec())
	if !errors.Is(err, apperrors.ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
}

func TestPlaceOrderValidationSkipsBroker(t *testing.T) {
	fake := &fakeSmartAPI{}
	s := NewSubmitter()

	spec := validSpec()
	spec.OrderType = "LIMIT"
	spec.Price = ""

	_, err := s.PlaceOrder(context.Background(), fake, "A123456", spec)
	if !errors.Is(err, apperrors.ErrPriceRequired) {
		t.Fatalf("expected ErrPriceRequired, got %v", err)
	}
	if fake.placeCalls != 0 {
		t.Error("broker must not be contacted when validation fails")
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	fake := &fakeSmartAPI{
		placeEnv: &broker.Envelope{
			Status: true,
			Data:   json.RawMessage(`{"script":"SBIN-EQ","orderid":"240603000000123"}`),
		},
	}
	s := NewSubmitter()

	result, err := s.PlaceOrder(context.Background(), fake, "A123456", validSpec())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.OrderID != "240603000000123" {
		t.Errorf("order id = %q", result.OrderID)
	}
	if !strings.Contains(result.Message, "240603000000123") {
		t.Errorf("message %q should carry the order id", result.Message)
	}
	if fake.lastParams.Variety != "NORMAL" || fake.lastParams.Duration != "DAY" {
		t.Errorf("submitted params: %+v", fake.lastParams)
	}
}

func TestPlaceOrderBrokerRejected(t *testing.T) {
	fake := &fakeSmartAPI{
		placeEnv: &broker.Envelope{
			Status:    false,
			Message:   "insufficient funds",
			ErrorCode: "AB1004",
		},
	}
	s := NewSubmitter()

	_, err := s.PlaceOrder(context.Background(), fake, "A123456", validSpec())
	var brokerErr *apperrors.BrokerError
	if !errors.As(err, &brokerErr) {
		t.Fatalf("expected BrokerError, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient funds") {
		t.Errorf("broker message lost: %q", err.Error())
	}
}

func TestPlaceOrderMissingOrderID(t *testing.T) {
	fake := &fakeSmartAPI{
		placeEnv: &broker.Envelope{
			Status: true,
			Data:   json.RawMessage(`{"script":"SBIN-EQ"}`),
		},
	}
	s := NewSubmitter()

	_, err := s.PlaceOrder(context.Background(), fake, "A123456", validSpec())
	var malformed *apperrors.MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func orderBookEnvelope(t *testing.T, entries []map[string]interface{}) *broker.Envelope {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal order book: %v", err)
	}
	return &broker.Envelope{Status: true, Data: data}
}

func TestCheckOrderStatusFound(t *testing.T) {
	fake := &fakeSmartAPI{
		bookEnv: orderBookEnvelope(t, []map[string]interface{}{
			{"orderid": "111", "status": "complete", "tradingsymbol": "SBIN-EQ"},
			{"orderid": "222", "status": "rejected", "tradingsymbol": "INFY-EQ"},
		}),
	}
	s := NewSubmitter()

	status, err := s.CheckOrderStatus(context.Background(), fake, "222")
	if err != nil {
		t.Fatalf("CheckOrderStatus: %v", err)
	}
	if status.Status != "rejected" {
		t.Errorf("status = %q", status.Status)
	}
	if status.Details["tradingsymbol"] != "INFY-EQ" {
		t.Errorf("details not preserved: %+v", status.Details)
	}
}

func TestCheckOrderStatusNotFound(t *testing.T) {
	fake := &fakeSmartAPI{
		bookEnv: orderBookEnvelope(t, []map[string]interface{}{
			{"orderid": "111", "status": "complete"},
		}),
	}
	s := NewSubmitter()

	_, err := s.CheckOrderStatus(context.Background(), fake, "999")
	if !errors.Is(err, apperrors.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCheckOrderStatusEmptyBook(t *testing.T) {
	fake := &fakeSmartAPI{
		bookEnv: &broker.Envelope{Status: true, Data: json.RawMessage("null")},
	}
	s := NewSubmitter()

	_, err := s.CheckOrderStatus(context.Background(), fake, "999")
	if !errors.Is(err, apperrors.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestCheckOrderStatusFetchFailed(t *testing.T) {
	fake := &fakeSmartAPI{
		bookEnv: &broker.Envelope{Status: false, Message: "session expired"},
	}
	s := NewSubmitter()

	_, err := s.CheckOrderStatus(context.Background(), fake, "111")
	if errors.Is(err, apperrors.ErrOrderNotFound) {
		t.Fatal("fetch failure must not look like not-found")
	}
	var brokerErr *apperrors.BrokerError
	if !errors.As(err, &brokerErr) {
		t.Fatalf("expected BrokerError, got %v", err)
	}
}

func TestCheckOrderStatusMissingStatusField(t *testing.T) {
	fake := &fakeSmartAPI{
		bookEnv: orderBookEnvelope(t, []map[string]interface{}{
			{"orderid": "111"},
		}),
	}
	s := NewSubmitter()

	status, err := s.CheckOrderStatus(context.Background(), fake, "111")
	if err != nil {
		t.Fatalf("CheckOrderStatus: %v", err)
	}
	if status.Status != "N/A" {
		t.Errorf("status = %q, want N/A", status.Status)
	}
}

func TestCheckOrderStatusRequiresID(t *testing.T) {
	s := NewSubmitter()
	_, err := s.CheckOrderStatus(context.Background(), &fakeSmartAPI{}, "")
	if !errors.Is(err, apperrors.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
}
