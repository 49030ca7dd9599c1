package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	cfg := &JWTConfig{SecretKey: "segredo", TokenDuration: time.Hour, Issuer: "pizzeria-alerts"}
	token, expires, err := GenerateJWT("maria", "admin", cfg)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := ValidateJWT(token, "segredo")
	require.NoError(t, err)
	assert.Equal(t, "maria", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "maria", claims.Subject)

	_, err = ValidateJWT(token, "outro")
	assert.Error(t, err)
}

func TestValidateJWT_Expired(t *testing.T) {
	token, _, err := GenerateJWT("maria", "admin", &JWTConfig{SecretKey: "s", TokenDuration: -time.Minute})
	require.NoError(t, err)
	_, err = ValidateJWT(token, "s")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateJWT_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{Username: "maria", Role: "admin"})
	signed, err := token.SignedString([]byte("s"))
	require.NoError(t, err)
	_, err = ValidateJWT(signed, "s")
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "maria", Role: "admin"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateJWT(unsigned, "s")
	assert.Error(t, err)
}
