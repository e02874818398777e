// Package tokencache persists an OAuth token pair between runs.
//
// The cache file's modification time doubles as the pair's issuance time, so
// the file must only ever be written on a genuine token refresh.
package tokencache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reconciled-dev/reconciled/internal/model"
)

// Load reads a cached token pair and reports whether it is still usable as a
// refresh seed. It fails soft: an absent, unreadable or unparsable file, or
// one whose age exceeds the recorded refresh lifetime, all return (nil,
// false) rather than an error, which sends the flow back through interactive
// login.
func Load(path string) (*model.CachedToken, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var tok model.CachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, false
	}
	if tok.RefreshToken == "" {
		return nil, false
	}

	if time.Since(info.ModTime()) > tok.RefreshTTL() {
		return nil, false
	}
	return &tok, true
}

// Save writes a token pair atomically: a crash mid-write leaves the previous
// cache intact instead of a half-written file that a later Load would treat
// as absent and re-trigger interactive login.
func Save(path string, tok *model.CachedToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting token file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
