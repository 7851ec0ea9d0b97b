// Package auth implements the SmartAPI login and logout flows.
package auth

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"angelone-web/internal/broker"
	apperrors "angelone-web/internal/errors"
	"angelone-web/internal/models"
	"angelone-web/internal/store"
)

// ClientFactory builds a SmartAPI client for an API key, optionally carrying
// an access token. Handlers derive a fresh client per request; nothing is
// pooled across requests.
type ClientFactory func(apiKey, accessToken string) broker.SmartAPI

// LoginResult carries the tokens from a successful login.
type LoginResult struct {
	Tokens  models.SessionTokens
	Message string
}

// Authenticator performs the one-time-password login against SmartAPI.
type Authenticator struct {
	newClient ClientFactory
	clock     Clock
	tokens    TokenWriter
	audit     store.AuditLog
	logger    zerolog.Logger
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithClock overrides the wall clock used for TOTP derivation.
func WithClock(clock Clock) AuthenticatorOption {
	return func(a *Authenticator) { a.clock = clock }
}

// WithTokenWriter enables the debug token-file side effect.
func WithTokenWriter(w TokenWriter) AuthenticatorOption {
	return func(a *Authenticator) { a.tokens = w }
}

// WithAuditLog enables audit logging of login attempts.
func WithAuditLog(audit store.AuditLog) AuthenticatorOption {
	return func(a *Authenticator) { a.audit = audit }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) AuthenticatorOption {
	return func(a *Authenticator) { a.logger = logger }
}

// NewAuthenticator creates an Authenticator using the given client factory.
func NewAuthenticator(factory ClientFactory, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		newClient: factory,
		clock:     time.Now,
		tokens:    NopTokenWriter{},
		audit:     store.NopAudit{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login validates the credentials, derives a TOTP code at the current time
// and performs the SmartAPI session-creation call. Every failure is returned
// as an error value; nothing panics past this boundary.
func (a *Authenticator) Login(ctx context.Context, creds models.Credentials) (*LoginResult, error) {
	if !creds.Complete() {
		a.logger.Error().Msg("Missing required login credentials")
		return nil, apperrors.ErrMissingCredentials
	}

	code, err := GenerateTOTP(creds.TOTPSecret, a.clock())
	if err != nil {
		a.recordLogin(ctx, creds.ClientID, false, err.Error())
		return nil, err
	}

	client := a.newClient(creds.APIKey, "")
	a.logger.Info().Str("client_id", creds.ClientID).Msg("Attempting generateSession")

	env, err := client.GenerateSession(ctx, creds.ClientID, creds.Password, code)
	if err != nil {
		a.recordLogin(ctx, creds.ClientID, false, err.Error())
		return nil, apperrors.Wrap(err, "login failed")
	}
	if !env.Status {
		message := env.Message
		if message == "" {
			message = "unknown login error"
		}
		a.logger.Error().Str("client_id", creds.ClientID).Str("errorcode", env.ErrorCode).Msg("Login rejected by broker")
		a.recordLogin(ctx, creds.ClientID, false, message)
		return nil, apperrors.NewBrokerError(env.ErrorCode, message, nil)
	}
	if !env.HasData() {
		a.recordLogin(ctx, creds.ClientID, false, "login response data missing")
		return nil, apperrors.NewMalformedResponseError("unexpected shape", "login status true but data missing")
	}

	var data broker.SessionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		a.recordLogin(ctx, creds.ClientID, false, "undecodable login data")
		return nil, apperrors.NewMalformedResponseError("unexpected shape", "undecodable login data")
	}
	if data.JWTToken == "" {
		a.logger.Error().Msg("Login successful but jwtToken missing in response data")
		a.recordLogin(ctx, creds.ClientID, false, "jwtToken missing")
		return nil, apperrors.ErrLoginDataMissing
	}

	// Debug token file write must never fail the login.
	if err := a.tokens.WriteToken(data.JWTToken, creds.ClientID); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to write auth token file")
	}

	a.logger.Info().Str("client_id", creds.ClientID).Msg("Login successful")
	a.recordLogin(ctx, creds.ClientID, true, "login successful")

	return &LoginResult{
		Tokens: models.SessionTokens{
			AuthToken:    data.JWTToken,
			RefreshToken: data.RefreshToken,
			FeedToken:    data.FeedToken,
		},
		Message: "Login Successful",
	}, nil
}

// Logout terminates the remote session. A fresh client is constructed solely
// to carry the access token for the terminate call.
func (a *Authenticator) Logout(ctx context.Context, authToken, clientID, apiKey string) error {
	if authToken == "" || clientID == "" || apiKey == "" {
		return apperrors.ErrMissingLogoutParams
	}

	authToken = strings.TrimPrefix(authToken, "Bearer ")
	client := a.newClient(apiKey, authToken)

	a.logger.Info().Str("client_id", clientID).Msg("Attempting terminateSession")
	env, err := client.TerminateSession(ctx, clientID)
	if err != nil {
		return apperrors.Wrap(err, "logout failed")
	}
	if !env.Status {
		message := env.Message
		if message == "" {
			message = "unknown logout error"
		}
		return apperrors.NewBrokerError(env.ErrorCode, message, nil)
	}

	a.logger.Info().Str("client_id", clientID).Msg("Logout successful")
	return nil
}

func (a *Authenticator) recordLogin(ctx context.Context, clientID string, success bool, message string) {
	if err := a.audit.RecordLogin(ctx, clientID, success, message); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to audit login event")
	}
}
