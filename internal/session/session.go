// Package session carries the client's upload-dirs list across
// stateless PUTs (spec §3 "Session state", §9 "Session as a cookie of
// paths"). Grounded on the teacher's internal/middleware/auth.go JWT
// issuing/parsing pattern, repurposed: instead of authenticating a
// user, the token's claims carry the ordered list of staging
// directories the client has touched, giving the cookie tamper
// evidence without a server-side session store.
package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const cookieName = "_clj_deploy_session"

// CookieName is the HTTP cookie carrying the session token.
func CookieName() string { return cookieName }

// claims is the JWT payload: an ordered list of absolute staging
// directory paths, most-recently-used first.
type claims struct {
	UploadDirs []string `json:"upload_dirs"`
	jwt.RegisteredClaims
}

// Codec encodes/decodes session cookies as signed JWTs.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec builds a Codec signing with secret. ttl bounds how long a
// staging session may be resumed; it is unrelated to finalization,
// which has no deadline of its own (spec §5 "Cancellation: none").
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// Session is the decoded, in-memory representation of the cookie.
type Session struct {
	UploadDirs []string
}

// Empty returns a session with no prior staging directories, for
// clients making their first PUT of a deploy.
func Empty() Session { return Session{} }

// Encode signs dirs into a JWT suitable for Set-Cookie.
func (c *Codec) Encode(s Session) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		UploadDirs: s.UploadDirs,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	return token.SignedString(c.secret)
}

// Decode verifies and parses a cookie value. An invalid, expired or
// absent cookie decodes to an empty session rather than an error: a
// client with no session cookie is simply starting a new deploy.
func (c *Codec) Decode(cookieValue string) Session {
	if cookieValue == "" {
		return Empty()
	}
	var cl claims
	_, err := jwt.ParseWithClaims(cookieValue, &cl, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return Empty()
	}
	return Session{UploadDirs: cl.UploadDirs}
}

// WithMostRecent returns a copy of s with dir moved to the front of
// UploadDirs (inserted if absent), implementing spec §4.4's "return
// HTTP 201 ... whose upload-dirs has the staging dir moved to the
// front".
func (s Session) WithMostRecent(dir string) Session {
	out := make([]string, 0, len(s.UploadDirs)+1)
	out = append(out, dir)
	for _, d := range s.UploadDirs {
		if d != dir {
			out = append(out, d)
		}
	}
	return Session{UploadDirs: out}
}
