package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

// LoadOrCreateSigningKey loads the local provider's Ed25519 key from path,
// generating and writing one (0600) on first start. The key id is derived
// from the key so it stays stable across restarts.
func LoadOrCreateSigningKey(path string, logger *slog.Logger) (*jwtx.EdDSASigner, error) {
	path = filepath.Clean(path)

	pemKey, err := os.ReadFile(path)
	switch {
	case err == nil:
		logger.Info("loaded signing key", "path", path)
	case errors.Is(err, fs.ErrNotExist):
		if pemKey, err = cryptox.GenerateEd25519Key(); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
		if err := os.WriteFile(path, pemKey, 0o600); err != nil {
			return nil, fmt.Errorf("failed to write signing key: %w", err)
		}
		logger.Warn("generated new signing key, existing sessions are invalid", "path", path)
	default:
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	kid := cryptox.FingerprintToken(string(pemKey))[:16]
	signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key %s: %w", path, err)
	}
	return signer, nil
}
