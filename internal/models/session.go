package models

// Credentials holds the broker credentials a user supplies on the login form.
// They live only for the duration of the browser session.
type Credentials struct {
	APIKey     string
	ClientID   string
	Password   string
	TOTPSecret string
}

// Complete reports whether all four credential fields are present.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.ClientID != "" && c.Password != "" && c.TOTPSecret != ""
}

// SessionTokens holds the tokens returned by a successful SmartAPI login.
// The refresh and feed tokens may be empty when the broker omits them.
type SessionTokens struct {
	AuthToken    string
	RefreshToken string
	FeedToken    string
}
