package session

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// TokenKind is the result of classifying a stored credential.  Classification
// happens exactly once, when the token is read; nothing downstream re-sniffs
// the string.
type TokenKind int

const (
	// TokenMalformed: not three dot-separated segments, or a fallback
	// payload that fails to decode.  Must be purged on sight.
	TokenMalformed TokenKind = iota
	// TokenReal: JWT-shaped and not recognisably locally fabricated; only
	// the server can judge it.
	TokenReal
	// TokenFallback: locally fabricated token, valid only offline and only
	// against the local user set.
	TokenFallback
)

// fallbackType is the type marker written into fabricated payloads.
const fallbackType = "local"

// FallbackClaims is the decoded middle segment of a locally fabricated
// token.  Exp and Iat are JWT-standard seconds since epoch.
type FallbackClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
	Typ   string `json:"typ"`
}

// Expired reports whether the claim's expiry is in the past.
func (c FallbackClaims) Expired() bool {
	return c.Exp <= time.Now().Unix()
}

// Classify resolves a stored credential into the tagged union once.  A token
// is JWT-shaped when it has three dot-separated segments; it is a fallback
// token when its middle segment additionally decodes to a payload with the
// local type marker, an email, a role and a numeric expiry.  Everything
// JWT-shaped but not fallback is presumed server-issued.  Decode failures on
// a candidate fallback payload do not make the token real again: a three
// segment token with undecodable middle is still TokenReal (the server will
// reject it); fewer or more segments is TokenMalformed.
func Classify(raw string) (TokenKind, FallbackClaims) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return TokenMalformed, FallbackClaims{}
	}
	payload, err := decodeSegment(parts[1])
	if err != nil {
		return TokenReal, FallbackClaims{}
	}
	var claims FallbackClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return TokenReal, FallbackClaims{}
	}
	if claims.Typ != fallbackType || claims.Email == "" || claims.Role == "" || claims.Exp == 0 {
		return TokenReal, FallbackClaims{}
	}
	return TokenFallback, claims
}

// Fabricate builds a three-segment fallback token for the offline login
// path.  Header and signature are placeholders; only the payload carries
// information, in the JWT-standard seconds-based shape so classification and
// expiry handling are uniform with real tokens.
func Fabricate(email, role string, ttl time.Duration) string {
	now := time.Now()
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, _ := json.Marshal(FallbackClaims{
		Email: email,
		Role:  role,
		Exp:   now.Add(ttl).Unix(),
		Iat:   now.Unix(),
		Typ:   fallbackType,
	})
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." +
		enc.EncodeToString(payload) + "." +
		enc.EncodeToString([]byte("evcore-local"))
}

// decodeSegment tolerates both raw and padded base64url, matching what the
// various client iterations have written.
func decodeSegment(seg string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(seg); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(seg)
}
