// Package api wires the Tool Dispatch Facade onto an HTTP transport,
// following the teacher's pkg/api: a *gin.Engine for the JSON tool
// endpoints plus a gorilla/mux sub-router for plain health/readiness
// probes that shouldn't carry gin's JSON-response conventions.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"

	"github.com/S-Corkum/agentmesh/pkg/facade"
	"github.com/S-Corkum/agentmesh/pkg/observability"
)

// Config configures the HTTP transport shim.
type Config struct {
	Addr      string
	JWTSecret string
}

// Server is the facade's HTTP front door.
type Server struct {
	cfg     Config
	facade  *facade.Facade
	logger  observability.Logger
	httpSrv *http.Server
}

// NewServer builds the gin engine and gorilla/mux health router, wraps them
// in a single http.Server, and returns it unstarted.
func NewServer(f *facade.Facade, cfg Config, logger observability.Logger) *Server {
	router := gin.New()
	router.Use(ErrorRecovery(logger))
	router.Use(RequestLogger(logger))
	router.Use(AuthMiddleware(cfg.JWTSecret))

	s := &Server{cfg: cfg, facade: f, logger: logger}
	s.registerToolRoutes(router)

	root := mux.NewRouter()
	root.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	root.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	root.PathPrefix("/").Handler(router)

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// registerToolRoutes exposes every manage_* tool as POST /tools/:tool,
// decoding {action, params, idempotency_key} and funneling straight into
// facade.Dispatch — the single dispatch point every transport shares.
func (s *Server) registerToolRoutes(router *gin.Engine) {
	router.POST("/tools/:tool", func(c *gin.Context) {
		var body struct {
			Action         string                 `json:"action"`
			Params         map[string]interface{} `json:"params"`
			IdempotencyKey string                  `json:"idempotency_key"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"kind": "INVALID", "message": "malformed request body: " + err.Error()},
			})
			return
		}

		req := facade.Request{
			Action:         body.Action,
			Params:         body.Params,
			Actor:          c.GetString(contextKeyActor),
			RequestID:      c.GetString(contextKeyRequestID),
			IdempotencyKey: body.IdempotencyKey,
		}
		env := s.facade.Dispatch(c.Request.Context(), c.Param("tool"), req)
		c.JSON(statusFor(env), env)
	})
}

// statusFor maps an Envelope's error kind to an HTTP status the way the
// teacher's ErrorHandlerMiddleware maps domain errors onto responses.
func statusFor(env facade.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	switch env.Error.Kind {
	case "INVALID":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "CONFLICT", "CYCLE", "VERSION_CONFLICT":
		return http.StatusConflict
	case "CAPACITY":
		return http.StatusTooManyRequests
	case "FORBIDDEN":
		return http.StatusForbidden
	case "CANCELLED":
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	env := s.facade.Dispatch(r.Context(), "manage_connection", facade.Request{Action: "health_check"})
	w.Header().Set("Content-Type", "application/json")
	if !env.Success {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(env)
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// Start begins serving; it blocks until the listener returns.
func (s *Server) Start() error {
	s.logger.Info("starting server", map[string]interface{}{"addr": s.cfg.Addr})
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
