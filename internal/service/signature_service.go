package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// tokenKey is the request field carrying the signature itself; it never
// participates in the digest.
const tokenKey = "Token"

// passwordKey is the virtual entry mixed into the digest.
const passwordKey = "Password"

// SHA256TokenService implements ports.TokenVerifier.
//
// The token is SHA-256 over the request's scalar values: take every
// top-level string/number/bool field except Token, add the entry
// (Password, passwordHash), sort entries lexicographically by key, and
// concatenate the values without separators.
type SHA256TokenService struct{}

// NewSHA256TokenService creates the merchant token verifier.
func NewSHA256TokenService() *SHA256TokenService {
	return &SHA256TokenService{}
}

// Compute builds the lowercase hex token for the given parameters.
func (s *SHA256TokenService) Compute(params map[string]any, passwordHash string) string {
	keys := make([]string, 0, len(params)+1)
	values := make(map[string]string, len(params)+1)

	for k, v := range params {
		if k == tokenKey {
			continue
		}
		sv, ok := scalarString(v)
		if !ok {
			continue // nested objects and arrays are excluded from signing
		}
		keys = append(keys, k)
		values[k] = sv
	}
	keys = append(keys, passwordKey)
	values[passwordKey] = passwordHash

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(values[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the token and compares it constant-time,
// case-insensitively.
func (s *SHA256TokenService) Verify(params map[string]any, providedToken, passwordHash string) bool {
	expected := s.Compute(params, passwordHash)
	provided := strings.ToLower(providedToken)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

// scalarString renders a scalar parameter the way it appears on the wire.
// JSON numbers arrive as float64 or json.Number depending on the decoder.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
