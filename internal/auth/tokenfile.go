package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// TokenWriter persists the last auth token for debugging and manual
// recovery. The write is a best-effort side effect; callers log failures and
// continue.
type TokenWriter interface {
	WriteToken(authToken, clientID string) error
}

// NopTokenWriter discards tokens.
type NopTokenWriter struct{}

// WriteToken implements TokenWriter.
func (NopTokenWriter) WriteToken(authToken, clientID string) error { return nil }

// FileTokenWriter writes the token to a JSON file with restricted
// permissions.
type FileTokenWriter struct {
	Path string
}

// NewFileTokenWriter creates a FileTokenWriter for the given path.
func NewFileTokenWriter(path string) *FileTokenWriter {
	return &FileTokenWriter{Path: path}
}

// WriteToken implements TokenWriter.
func (w *FileTokenWriter) WriteToken(authToken, clientID string) error {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0700); err != nil {
		return err
	}
	payload := map[string]map[string]string{
		"data": {
			"auth_token": authToken,
			"client_id":  clientID,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(w.Path, data, 0600)
}
