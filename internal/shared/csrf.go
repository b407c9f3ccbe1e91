package shared

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const (
	// CSRFHeader is the request header carrying the CSRF token.
	CSRFHeader = "X-CSRF-Token"
	// CSRFCookie is the cookie carrying the paired token.
	CSRFCookie = "csrf_token"
	// CSRFTokenMaxAge bounds the lifetime of an issued token in seconds.
	CSRFTokenMaxAge = 3600

	csrfTokenBytes = 32
)

// CSRFManager issues and verifies double-submit CSRF tokens. Each issued
// token is independent: it validates only against the cookie set alongside
// it, so concurrent tabs each hold a working pair.
type CSRFManager struct {
	secure bool
}

// NewCSRFManager returns a CSRFManager. secure controls the cookie's Secure
// attribute and should be true in production.
func NewCSRFManager(secure bool) *CSRFManager {
	return &CSRFManager{secure: secure}
}

// Issue generates a fresh token and sets the paired cookie on the response.
// The caller returns the token in the response body as well.
func (m *CSRFManager) Issue(w http.ResponseWriter) (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   CSRFTokenMaxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// Verify checks the header token against the cookie token. Safe methods
// always pass; state-changing methods require both tokens present and equal.
func (m *CSRFManager) Verify(r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	cookie, err := r.Cookie(CSRFCookie)
	if err != nil || cookie.Value == "" {
		return ErrCSRFTokenMissing
	}
	header := r.Header.Get(CSRFHeader)
	if header == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(cookie.Value), []byte(header)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}
