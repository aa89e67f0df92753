package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/orchestrator"
	"github.com/gustavo/chainagent/internal/runstore"
	"github.com/gustavo/chainagent/pkg/logger"
)

// Server exposes the action pipeline over HTTP: a synchronous JSON endpoint,
// run history, and a websocket that streams per-stage notifications.
type Server struct {
	orch   *orchestrator.Orchestrator
	store  *runstore.Store
	http   *http.Server
	log    *slog.Logger
	limits Limits
}

// Limits bound request handling.
type Limits struct {
	MaxBodyBytes   int64
	ExecuteTimeout time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = 16 << 10
	}
	if l.ExecuteTimeout <= 0 {
		l.ExecuteTimeout = 10 * time.Minute
	}
	return l
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Local operator tool; the listener binds loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func NewServer(addr string, orch *orchestrator.Orchestrator, store *runstore.Store, limits Limits) *Server {
	s := &Server{
		orch:   orch,
		store:  store,
		log:    logger.Named("api"),
		limits: limits.withDefaults(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.limits.ExecuteTimeout + time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/actions", s.handleExecute)
		r.Get("/actions", s.handleList)
		r.Get("/actions/{runID}", s.handleGet)
	})
	r.Get("/ws/actions", s.handleStream)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type executeRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	body := http.MaxBytesReader(w, r.Body, s.limits.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.limits.ExecuteTimeout)
	defer cancel()

	outcome, err := s.orch.Execute(ctx, req.Text, nil)
	status := http.StatusOK
	if err != nil {
		status = statusForCode(clierr.CodeOf(err))
	}
	writeJSON(w, status, outcome)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "run store is disabled"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.store.List(r.URL.Query().Get("status"), limit)
	if err != nil {
		s.log.Error("list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "run store is disabled"})
		return
	}
	run, err := s.store.Get(chi.URLParam(r, "runID"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleStream upgrades to a websocket, reads one instruction, and streams
// every pipeline notification. The terminal notification carries the full
// outcome; the connection closes after it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.limits.MaxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(time.Minute))
	var req executeRequest
	if err := conn.ReadJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		_ = conn.WriteJSON(errorResponse{Error: "expected a JSON message with a non-empty text field"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.limits.ExecuteTimeout)
	defer cancel()

	// Notifications arrive from the pipeline goroutine; writes are
	// serialized through this channel because gorilla connections allow
	// one concurrent writer.
	events := make(chan orchestrator.Notification, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.orch.Execute(ctx, req.Text, orchestrator.NotifierFunc(func(n orchestrator.Notification) {
			select {
			case events <- n:
			case <-ctx.Done():
			}
		}))
	}()

	for {
		select {
		case n := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(n); err != nil {
				s.log.Warn("websocket write failed", "run_id", n.RunID, "error", err)
				cancel()
				<-done
				return
			}
			if n.Terminal {
				<-done
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
		case <-done:
			// Drain anything buffered before closing.
			for {
				select {
				case n := <-events:
					_ = conn.WriteJSON(n)
					if n.Terminal {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			<-done
			return
		}
	}
}

func statusForCode(code clierr.Code) int {
	switch code {
	case clierr.CodeSuccess:
		return http.StatusOK
	case clierr.CodeParse, clierr.CodeUsage, clierr.CodeValidation:
		return http.StatusUnprocessableEntity
	case clierr.CodeUnsupported:
		return http.StatusNotImplemented
	case clierr.CodeTimeout:
		return http.StatusGatewayTimeout
	case clierr.CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Named("api").Warn("encode response", "error", err)
	}
}
