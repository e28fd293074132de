package docauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// TokenHandler serves GET /auth/token: it hands the caller a scoped
// credential for its own framework session, minting one if needed.
type TokenHandler struct {
	Sessions SessionResolver
	Bridge   *CredentialBridge
	Cookies  SessionCookies

	// Method the endpoint answers to. Defaults to GET.
	Method string

	// AdditionalClaims are embedded into newly minted credentials
	AdditionalClaims func(su *SessionAndUser) map[string]any

	Now    func() time.Time
	Logger *slog.Logger
}

func (h *TokenHandler) EnsureDefaults() *TokenHandler {
	h.Cookies.EnsureDefaults()
	if h.Method == "" {
		h.Method = http.MethodGet
	}
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	return h
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.EnsureDefaults()
	if r.Method != h.Method {
		writeJSON(w, http.StatusForbidden, false)
		return
	}

	su, err := ResolveSession(r.Context(), h.Sessions, &h.Cookies, r, h.Now)
	if err != nil {
		h.Logger.Error("resolving session failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, false)
		return
	}
	if su == nil {
		writeJSON(w, http.StatusForbidden, false)
		return
	}

	var claims map[string]any
	if h.AdditionalClaims != nil {
		claims = h.AdditionalClaims(su)
	}

	token, err := h.Bridge.GetOrMint(r.Context(), su.Session.SessionToken, su.User.ID, claims)
	if err != nil {
		h.Logger.Error("issuing scoped credential failed", "user", su.User.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, false)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(token))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
