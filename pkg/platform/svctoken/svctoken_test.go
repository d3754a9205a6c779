package svctoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer(t *testing.T) {
	issuer := NewIssuer("secret", "kycflow", "verification", time.Minute)

	t.Run("round trip keeps the verification id", func(t *testing.T) {
		token, err := issuer.Token("v-1")
		require.NoError(t, err)

		claims, err := issuer.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, "v-1", claims.VerificationID)
		assert.Equal(t, "kycflow", claims.Issuer)
		assert.NotEmpty(t, claims.ID)
	})

	t.Run("different key is rejected", func(t *testing.T) {
		token, err := NewIssuer("other", "kycflow", "verification", time.Minute).Token("")
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		old := NewIssuer("secret", "kycflow", "verification", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := old.Token("v-1")
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience is rejected", func(t *testing.T) {
		token, err := NewIssuer("secret", "kycflow", "flow-config", time.Minute).Token("")
		require.NoError(t, err)
		_, err = issuer.Validate(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
