// Package session provides the cookie-backed browser session state.
package session

import (
	"net/http"

	"github.com/gorilla/sessions"

	"angelone-web/internal/models"
)

const sessionName = "angelone-web"

// State is the per-browser session record: the supplied credentials, the
// tokens from a successful login and the two-state logged-in flag. It is
// created at login, read by every authenticated operation and destroyed on
// logout, login failure or server restart.
type State struct {
	Credentials models.Credentials
	Tokens      models.SessionTokens
	LoggedIn    bool
}

// Manager reads and writes session state through an encrypted cookie store.
// Nothing is persisted server-side; a process restart invalidates every
// session.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a Manager. authKey signs the cookie and encKey
// encrypts it; encKey must be 16, 24 or 32 bytes.
func NewManager(authKey, encKey []byte) *Manager {
	store := sessions.NewCookieStore(authKey, encKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0, // session cookie, cleared when the browser closes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store}
}

// Get decodes the session state from the request. A missing or undecodable
// cookie yields a zero State (anonymous).
func (m *Manager) Get(r *http.Request) *State {
	sess, err := m.store.Get(r, sessionName)
	if err != nil {
		return &State{}
	}

	state := &State{
		Credentials: models.Credentials{
			APIKey:     stringValue(sess, "api_key"),
			ClientID:   stringValue(sess, "client_id"),
			Password:   stringValue(sess, "password"),
			TOTPSecret: stringValue(sess, "totp_secret"),
		},
		Tokens: models.SessionTokens{
			AuthToken:    stringValue(sess, "auth_token"),
			RefreshToken: stringValue(sess, "refresh_token"),
			FeedToken:    stringValue(sess, "feed_token"),
		},
	}
	if v, ok := sess.Values["logged_in"].(bool); ok {
		state.LoggedIn = v
	}
	return state
}

// Save writes the state back to the cookie.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, state *State) error {
	sess, _ := m.store.Get(r, sessionName)
	sess.Values["api_key"] = state.Credentials.APIKey
	sess.Values["client_id"] = state.Credentials.ClientID
	sess.Values["password"] = state.Credentials.Password
	sess.Values["totp_secret"] = state.Credentials.TOTPSecret
	sess.Values["auth_token"] = state.Tokens.AuthToken
	sess.Values["refresh_token"] = state.Tokens.RefreshToken
	sess.Values["feed_token"] = state.Tokens.FeedToken
	sess.Values["logged_in"] = state.LoggedIn
	return sess.Save(r, w)
}

// Clear destroys the session. A failed login always routes through here so
// no partial state survives.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, sessionName)
	sess.Values = make(map[interface{}]interface{})
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func stringValue(sess *sessions.Session, key string) string {
	if v, ok := sess.Values[key].(string); ok {
		return v
	}
	return ""
}
