package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Prefix starts every SAS token.
const Prefix = "SharedAccessSignature "

// Token errors.
var (
	ErrEmptyKey      = errors.New("sas: key is empty")
	ErrInvalidKey    = errors.New("sas: key is not valid base64")
	ErrEmptyScope    = errors.New("sas: scope is empty")
	ErrInvalidToken  = errors.New("sas: malformed token")
	ErrMissingExpiry = errors.New("sas: token has no expiry")
)

// Mint creates a token for scope, signed with key and expiring at expiry
// (seconds since the Unix epoch). keyName is appended as skn when non-empty.
func Mint(key, scope, keyName string, expiry int64) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if scope == "" {
		return "", ErrEmptyScope
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	encodedScope := url.QueryEscape(scope)
	expiryStr := strconv.FormatInt(expiry, 10)

	mac := hmac.New(sha256.New, decoded)
	mac.Write([]byte(encodedScope + "\n" + expiryStr))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	var b strings.Builder
	b.WriteString(Prefix)
	b.WriteString("sr=")
	b.WriteString(encodedScope)
	b.WriteString("&sig=")
	b.WriteString(url.QueryEscape(sig))
	b.WriteString("&se=")
	b.WriteString(expiryStr)
	if keyName != "" {
		b.WriteString("&skn=")
		b.WriteString(url.QueryEscape(keyName))
	}
	return b.String(), nil
}

// Fields returns the decoded key/value pairs of a token.
func Fields(token string) (url.Values, error) {
	if !strings.HasPrefix(token, Prefix) {
		return nil, ErrInvalidToken
	}
	values, err := url.ParseQuery(strings.TrimPrefix(token, Prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return values, nil
}

// ExpiryOf returns the expiry encoded in a token.
func ExpiryOf(token string) (time.Time, error) {
	values, err := Fields(token)
	if err != nil {
		return time.Time{}, err
	}
	se := values.Get("se")
	if se == "" {
		return time.Time{}, ErrMissingExpiry
	}
	secs, err := strconv.ParseInt(se, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: se=%q", ErrInvalidToken, se)
	}
	return time.Unix(secs, 0), nil
}

// Expired reports whether token expires at or before now. A token whose
// expiry cannot be read is treated as expired.
func Expired(token string, now time.Time) bool {
	exp, err := ExpiryOf(token)
	if err != nil {
		return true
	}
	return !exp.After(now)
}
