package http

import (
	"net/http"
	"time"
)

// AccessKeyCookie is the cookie carrying the anonymous cart token.
const AccessKeyCookie = "cart_key"

// accessKeyTTL keeps the cookie alive well past the sweeper's retention
// window, so the server side always expires first.
const accessKeyTTL = 90 * 24 * time.Hour

// requestIdentity implements service.Identity over an HTTP request/response
// pair: the X-User-ID header (set by the gateway after authentication) and
// the cart_key cookie.
type requestIdentity struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool
}

func newRequestIdentity(w http.ResponseWriter, r *http.Request, secure bool) *requestIdentity {
	return &requestIdentity{w: w, r: r, secure: secure}
}

func (i *requestIdentity) OwnerID() string {
	return i.r.Header.Get("X-User-ID")
}

func (i *requestIdentity) AccessKey() string {
	c, err := i.r.Cookie(AccessKeyCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (i *requestIdentity) SetAccessKey(key string) {
	http.SetCookie(i.w, &http.Cookie{
		Name:     AccessKeyCookie,
		Value:    key,
		Path:     "/",
		MaxAge:   int(accessKeyTTL.Seconds()),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (i *requestIdentity) ClearAccessKey() {
	http.SetCookie(i.w, &http.Cookie{
		Name:     AccessKeyCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
