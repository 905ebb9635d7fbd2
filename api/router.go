package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vainnor/painel/metrics"
	"github.com/vainnor/painel/remote"
	"github.com/vainnor/painel/session"
)

// Handler carries the dependencies shared by every endpoint.
type Handler struct {
	sessions *session.Manager
	remote   remote.Store
	auth     *Auth
	limiter  *RateLimiter
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

type Options struct {
	Sessions *session.Manager
	Remote   remote.Store
	Auth     *Auth
	Limiter  *RateLimiter
	Logger   *zap.Logger
	// Now defaults to time.Now
	Now func() time.Time
}

func NewHandler(opts Options) *Handler {
	validate := validator.New()
	validate.RegisterValidation("notblank", validators.NotBlank)

	h := &Handler{
		sessions: opts.Sessions,
		remote:   opts.Remote,
		auth:     opts.Auth,
		limiter:  opts.Limiter,
		logger:   opts.Logger,
		validate: validate,
		now:      opts.Now,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// NewRouter creates and configures a new router with all API endpoints
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.AccessLog)

	r.HandleFunc("/healthz", Health).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.LoadSession)
	if h.limiter != nil {
		api.Use(h.limiter.Middleware)
	}
	api.Use(h.Session)

	api.HandleFunc("/login", h.Login).Methods("POST")
	api.HandleFunc("/logout", h.Logout).Methods("POST")
	api.HandleFunc("/session", h.SessionInfo).Methods("GET")
	api.Handle("/remote/check", h.RequireLogin(http.HandlerFunc(h.CheckRemote))).Methods("GET")

	registerDataset(api, h, flightsEndpoints)
	registerDataset(api, h, logisticsEndpoints)

	return r
}
