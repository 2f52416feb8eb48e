package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestMint(t *testing.T) {
	scope := "hub.example.net/devices/dev-1"

	token, err := Mint(testKey, scope, "", 1700000000)
	require.NoError(t, err)
	assert.Contains(t, token, Prefix)

	fields, err := Fields(token)
	require.NoError(t, err)
	assert.Equal(t, scope, fields.Get("sr"))
	assert.Equal(t, "1700000000", fields.Get("se"))
	assert.Empty(t, fields.Get("skn"))

	mac := hmac.New(sha256.New, []byte("0123456789abcdef0123456789abcdef"))
	mac.Write([]byte(url.QueryEscape(scope) + "\n1700000000"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), fields.Get("sig"))
}

func TestMintWithKeyName(t *testing.T) {
	token, err := Mint(testKey, "hub/devices/dev", "device", 10)
	require.NoError(t, err)

	fields, err := Fields(token)
	require.NoError(t, err)
	assert.Equal(t, "device", fields.Get("skn"))
}

func TestMintErrors(t *testing.T) {
	_, err := Mint("", "scope", "", 1)
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = Mint(testKey, "", "", 1)
	assert.ErrorIs(t, err, ErrEmptyScope)

	_, err = Mint("%%%not-base64", "scope", "", 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestExpiryOf(t *testing.T) {
	token, err := Mint(testKey, "scope", "", 1234)
	require.NoError(t, err)

	exp, err := ExpiryOf(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), exp.Unix())

	_, err = ExpiryOf("Bearer abc")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ExpiryOf(Prefix + "sr=x&sig=y")
	assert.ErrorIs(t, err, ErrMissingExpiry)
}

func TestExpired(t *testing.T) {
	token, err := Mint(testKey, "scope", "", 1000)
	require.NoError(t, err)

	assert.False(t, Expired(token, time.Unix(999, 0)))
	assert.True(t, Expired(token, time.Unix(1000, 0)))
	assert.True(t, Expired("garbage", time.Unix(0, 0)))
}
