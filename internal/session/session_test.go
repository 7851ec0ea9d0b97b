package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"angelone-web/internal/models"
)

func newTestManager() *Manager {
	authKey := []byte("0123456789abcdef0123456789abcdef")
	encKey := []byte("abcdef0123456789abcdef0123456789")
	return NewManager(authKey, encKey)
}

func loggedInState() *State {
	return &State{
		Credentials: models.Credentials{
			APIKey:     "api-key",
			ClientID:   "A123456",
			Password:   "1234",
			TOTPSecret: "JBSWY3DPEHPK3PXP",
		},
		Tokens: models.SessionTokens{
			AuthToken:    "jwt-abc",
			RefreshToken: "ref-def",
			FeedToken:    "feed-ghi",
		},
		LoggedIn: true,
	}
}

// requestWithCookies carries the Set-Cookie output of a previous response.
func requestWithCookies(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range rec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	return req
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	m := newTestManager()

	rec := httptest.NewRecorder()
	if err := m.Save(rec, httptest.NewRequest(http.MethodPost, "/", nil), loggedInState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	state := m.Get(requestWithCookies(t, rec))
	if !state.LoggedIn {
		t.Fatal("state should be logged in")
	}
	if state.Credentials.ClientID != "A123456" || state.Credentials.APIKey != "api-key" {
		t.Errorf("credentials: %+v", state.Credentials)
	}
	if state.Tokens.AuthToken != "jwt-abc" || state.Tokens.FeedToken != "feed-ghi" {
		t.Errorf("tokens: %+v", state.Tokens)
	}
}

func TestGetWithoutCookie(t *testing.T) {
	m := newTestManager()
	state := m.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	if state.LoggedIn {
		t.Error("missing cookie must yield an anonymous state")
	}
	if state.Credentials.APIKey != "" || state.Tokens.AuthToken != "" {
		t.Errorf("anonymous state must be empty: %+v", state)
	}
}

func TestGetWithForeignKeys(t *testing.T) {
	// A cookie minted under different keys must not decode.
	minter := newTestManager()
	rec := httptest.NewRecorder()
	if err := minter.Save(rec, httptest.NewRequest(http.MethodPost, "/", nil), loggedInState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	other := NewManager(
		[]byte("ffffffffffffffffffffffffffffffff"),
		[]byte("00000000000000000000000000000000"),
	)
	state := other.Get(requestWithCookies(t, rec))
	if state.LoggedIn {
		t.Error("cookie from foreign keys must not authenticate")
	}
}

func TestClear(t *testing.T) {
	m := newTestManager()

	rec := httptest.NewRecorder()
	if err := m.Save(rec, httptest.NewRequest(http.MethodPost, "/", nil), loggedInState()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clearRec := httptest.NewRecorder()
	if err := m.Clear(clearRec, requestWithCookies(t, rec)); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	found := false
	for _, cookie := range clearRec.Result().Cookies() {
		if cookie.Name == sessionName {
			found = true
			if cookie.MaxAge >= 0 {
				t.Errorf("cleared cookie MaxAge = %d, want negative", cookie.MaxAge)
			}
		}
	}
	if !found {
		t.Error("Clear must emit an expiring session cookie")
	}

	state := m.Get(requestWithCookies(t, clearRec))
	if state.LoggedIn {
		t.Error("cleared session must be anonymous")
	}
}
