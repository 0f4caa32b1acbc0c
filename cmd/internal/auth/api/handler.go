package authapi

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/MouseNguyen/laba-platform-phase1-sub000/cmd/internal/auth/session"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
}

// NewHandler constructs an auth Handler. A nil service makes every endpoint return 503.
func NewHandler(log *slog.Logger, sessions *session.Service, cfg Config) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = DefaultConfig().RefreshCookieName
	}
	return &Handler{log: log, cfg: cfg, sessions: sessions}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/auth/sessions", h.handleSessions)
	mux.HandleFunc("/me", h.handleMe)
}

func (h *Handler) available(w http.ResponseWriter) bool {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, "auth service not configured")
		return false
	}
	return true
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "email and password are required")
		return
	}

	u, err := h.sessions.Register(r.Context(), req.Email, req.Password, h.deviceContext(r))
	if err != nil {
		h.writeServiceError(w, "auth.register", err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "email and password are required")
		return
	}

	issued, err := h.sessions.Login(r.Context(), req.Email, req.Password, h.deviceContext(r))
	if err != nil {
		h.writeServiceError(w, "auth.login", err)
		return
	}

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp)
	writeJSON(w, http.StatusOK, loginResponse{
		User:    userResponse{ID: issued.UserID, Email: issued.Email},
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}

	refreshToken, fromCookie, ok := h.refreshTokenFromRequest(w, r)
	if !ok {
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), refreshToken, h.deviceContext(r))
	if err != nil {
		if fromCookie {
			h.clearRefreshCookie(w)
		}
		h.writeServiceError(w, "auth.refresh", err)
		return
	}

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp)
	resp := toSessionResponse(issued)
	if fromCookie {
		// Cookie clients never see the raw refresh token.
		resp.RefreshToken = ""
	}
	writeJSON(w, http.StatusOK, refreshResponse{Session: resp})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}

	refreshToken, _, ok := h.refreshTokenFromRequest(w, r)
	if !ok {
		return
	}
	if err := h.sessions.Logout(r.Context(), refreshToken); err != nil {
		h.writeServiceError(w, "auth.logout", err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	if err := h.sessions.RevokeAll(r.Context(), claims.UserID); err != nil {
		h.writeServiceError(w, "auth.logout_all", err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	recs, err := h.sessions.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		h.writeServiceError(w, "auth.sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: toDeviceResponses(recs)})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.available(w) {
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt,
	})
}

// ---- helpers ----

// refreshTokenFromRequest prefers the JSON body and falls back to the refresh cookie.
// It writes the 400 response itself when neither carries a token.
func (h *Handler) refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) (string, bool, bool) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
			return "", false, false
		}
	}
	if tok := strings.TrimSpace(req.RefreshToken); tok != "" {
		return tok, false, true
	}
	if tok, ok := h.refreshTokenFromCookie(r); ok {
		return tok, true, true
	}
	writeError(w, http.StatusBadRequest, CodeInvalidRequest, "refresh_token is required")
	return "", false, false
}

func (h *Handler) deviceContext(r *http.Request) session.DeviceContext {
	return session.DeviceContext{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, CodeInvalidToken, "missing bearer token")
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.ValidateAccessToken(r.Context(), token)
	if err != nil {
		h.writeServiceError(w, "auth.access", err)
		return session.AccessClaims{}, false
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
