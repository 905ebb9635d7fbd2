package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vainnor/painel/config"
)

// Auth checks the single administrator account.
type Auth struct {
	username string
	hash     []byte
	password string
}

// NewAuth prefers a bcrypt hash over a plain password. With neither set
// every login fails.
func NewAuth(admin config.Admin, logger *zap.Logger) *Auth {
	a := &Auth{username: admin.Username, password: admin.Password}
	if admin.PasswordHash != "" {
		a.hash = []byte(admin.PasswordHash)
		a.password = ""
	}
	if a.hash == nil && a.password == "" {
		logger.Warn("no admin password configured; login is disabled")
	}
	return a
}

func (a *Auth) Check(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		return false
	}
	if a.hash != nil {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	}
	if a.password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login issues a fresh session id for the logged in session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	s := sessionFrom(r.Context())
	if !h.auth.Check(req.Username, req.Password) {
		h.logger.Warn("login failed", zap.String("username", req.Username), zap.String("session", s.ID))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	s = h.sessions.Rotate(s)
	s.Login(req.Username)
	setSessionCookie(w, s)
	h.logger.Info("login", zap.String("username", req.Username), zap.String("session", s.ID))
	writeJSON(w, http.StatusOK, SessionResponse{LoggedIn: true, User: req.Username})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r.Context()).Logout()
	writeJSON(w, http.StatusOK, SessionResponse{})
}

func (h *Handler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{LoggedIn: s.LoggedIn(), User: s.User()})
}
