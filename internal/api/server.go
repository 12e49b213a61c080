// Package api exposes the operator commands and liveness endpoints over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"solana-sweeper/internal/notify"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/pool"
	"solana-sweeper/internal/sweeper"
)

// MaxUploadSize bounds the credential text accepted by the add route.
const MaxUploadSize = 10 << 20

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Commands is the command surface served by the API.
// *sweeper.Service implements it.
type Commands interface {
	AddAccounts(ctx context.Context, owner, text string) (*sweeper.AddResult, error)
	Resume(ctx context.Context, owner string) (*sweeper.ResumeResult, error)
	Status(ctx context.Context, owner string) (*sweeper.StatusReport, error)
	StopAccounts(ctx context.Context, owner string, selectors []string) (*sweeper.StopResult, error)
	StopAll(ctx context.Context, owner string) int
	Clear(ctx context.Context, owner string) (int, error)
	Welcome(ctx context.Context, owner string) string
	Help() string
}

var _ Commands = (*sweeper.Service)(nil)

// Liveness replies.
type (
	RootResponse struct {
		Status    string    `json:"status"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}
	HealthResponse struct {
		Status    string    `json:"status"`
		Uptime    float64   `json:"uptime"`
		Timestamp time.Time `json:"timestamp"`
	}
)

// Request bodies.
type (
	AddRequest struct {
		Text string `json:"text"`
	}
	StopRequest struct {
		Selectors []string `json:"selectors"`
	}
)

// Reply bodies without a dedicated sweeper type.
type (
	TextResponse struct {
		Text string `json:"text"`
	}
	StopAllResponse struct {
		Stopped int    `json:"stopped"`
		Text    string `json:"text"`
	}
	ClearResponse struct {
		Deleted int    `json:"deleted"`
		Text    string `json:"text"`
	}
	ErrorResponse struct {
		Error string `json:"error"`
		Text  string `json:"text"`
	}
)

// Options configures a Server.
type Options struct {
	Commands Commands
	// Token guards the command routes. Empty disables authentication.
	Token  string
	Logger *log.Logger
}

// Server routes HTTP requests to the command surface.
type Server struct {
	cmds    Commands
	token   string
	logger  *log.Logger
	started time.Time
	now     func() time.Time
	router  *mux.Router
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cmds:   opts.Commands,
		token:  opts.Token,
		logger: logger,
		now:    time.Now,
	}
	s.started = s.now()

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/help", s.handleHelp).Methods(http.MethodGet)
	api.HandleFunc("/owners/{owner}/welcome", s.handleWelcome).Methods(http.MethodGet)
	api.HandleFunc("/owners/{owner}/accounts", s.handleAdd).Methods(http.MethodPost)
	api.HandleFunc("/owners/{owner}/accounts", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/owners/{owner}/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/owners/{owner}/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/owners/{owner}/stop", s.handleStop).Methods(http.MethodPost)
	api.HandleFunc("/owners/{owner}/stop-all", s.handleStopAll).Methods(http.MethodPost)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Starting HTTP server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Text: "❌ unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{
		Status:    "Bot is running",
		Message:   "Solana wallet monitoring bot is active",
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Uptime:    now.Sub(s.started).Seconds(),
		Timestamp: now.UTC(),
	})
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TextResponse{Text: s.cmds.Help()})
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TextResponse{Text: s.cmds.Welcome(r.Context(), owner(r))})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.cmds.AddAccounts(r.Context(), owner(r), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	res, err := s.cmds.Resume(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.cmds.Status(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.cmds.StopAccounts(r.Context(), owner(r), req.Selectors)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	n := s.cmds.StopAll(r.Context(), owner(r))
	writeJSON(w, http.StatusOK, StopAllResponse{Stopped: n, Text: notify.StoppedAllText})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.cmds.Clear(r.Context(), owner(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResponse{Deleted: n, Text: sweeper.ClearedText})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Text: FileTooLargeText})
			return false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Text: "❌ invalid request: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("command failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Text: sweeper.Reply(err)})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, sweeper.ErrNoValidCredentials), errors.Is(err, sweeper.ErrNoSelectors):
		return http.StatusBadRequest
	case errors.Is(err, sweeper.ErrNothingToResume), errors.Is(err, sweeper.ErrNothingMonitored):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrNoEndpointsConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func owner(r *http.Request) string {
	return mux.Vars(r)["owner"]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
