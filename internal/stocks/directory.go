// Package stocks provides the static symbol directory.
package stocks

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"angelone-web/internal/models"
)

// Directory maps upper-cased trading symbols to their exchange-specific
// identifiers. It is loaded once at startup and read-only thereafter.
type Directory struct {
	entries map[string]models.StockEntry
}

// Load reads a JSON array of {symbol, token, exchange} objects from path.
// A missing file, malformed JSON, or non-array top level degrades to an
// empty directory with a warning; this is the only place a load failure does
// not propagate.
func Load(path string, logger zerolog.Logger) *Directory {
	dir := &Directory{entries: make(map[string]models.StockEntry)}

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Stock directory file not found")
		return dir
	}

	var entries []models.StockEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		// Distinguish a non-array top level from undecodable JSON.
		var anything interface{}
		if jsonErr := json.Unmarshal(raw, &anything); jsonErr != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Stock directory is not valid JSON")
		} else {
			logger.Warn().Str("path", path).Msg("Stock directory does not contain a list of stock entries")
		}
		return dir
	}

	for _, entry := range entries {
		if entry.Symbol == "" || entry.Token == "" || entry.Exchange == "" {
			continue
		}
		dir.entries[strings.ToUpper(entry.Symbol)] = entry
	}

	if len(dir.entries) == 0 {
		logger.Warn().Str("path", path).Msg("Stock directory is empty")
	} else {
		logger.Info().Int("symbols", len(dir.entries)).Str("path", path).Msg("Stock directory loaded")
	}
	return dir
}

// Lookup resolves a symbol to its directory entry. The key is
// case-insensitive: "infy" and "INFY" resolve to the same entry.
func (d *Directory) Lookup(symbol string) (models.StockEntry, bool) {
	entry, ok := d.entries[strings.ToUpper(strings.TrimSpace(symbol))]
	return entry, ok
}

// Symbols returns the loaded symbols in no particular order.
func (d *Directory) Symbols() []string {
	symbols := make([]string, 0, len(d.entries))
	for symbol := range d.entries {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Len returns the number of entries.
func (d *Directory) Len() int {
	return len(d.entries)
}
