package cryptox_test

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
)

func TestGenerateEd25519Key(t *testing.T) {
	t.Run("pkcs8 pem", func(t *testing.T) {
		pemBytes, err := cryptox.GenerateEd25519Key()
		require.NoError(t, err)

		block, rest := pem.Decode(pemBytes)
		require.NotNil(t, block)
		require.Empty(t, rest)
		require.Equal(t, "PRIVATE KEY", block.Type)

		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		require.NoError(t, err)
		require.IsType(t, ed25519.PrivateKey{}, parsed)
	})

	t.Run("fresh key per call", func(t *testing.T) {
		a, err := cryptox.GenerateEd25519Key()
		require.NoError(t, err)
		b, err := cryptox.GenerateEd25519Key()
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("loads as a session token signer", func(t *testing.T) {
		pemBytes, err := cryptox.GenerateEd25519Key()
		require.NoError(t, err)

		signer, err := jwtx.NewSignerEdDSA("k1", pemBytes)
		require.NoError(t, err)
		require.Equal(t, "k1", signer.PublicJWK().Kid)
	})
}
