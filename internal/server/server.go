// Package server exposes the daemon's local REST and WebSocket surface.
// The UI shell and home-screen widgets are thin clients of this API; all
// scheduling side effects happen here so a schedule edit and its alarm
// registration never drift apart.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"studymate/internal/alarms"
	"studymate/internal/eventbus"
	"studymate/internal/notify"
	"studymate/internal/storage"
	"studymate/internal/timer"
	logx "studymate/pkg/logx"
)

type Config struct {
	Addr string
}

type Server struct {
	cfg    Config
	store  *storage.Store
	alarms *alarms.Service
	timer  *timer.Engine
	notes  *notify.Service
	bus    *eventbus.Bus
	hub    *Hub
	log    logx.Logger

	mu      sync.Mutex
	httpSrv *http.Server
	cancel  context.CancelFunc
}

func New(cfg Config, store *storage.Store, alarmSvc *alarms.Service, engine *timer.Engine, notes *notify.Service, bus *eventbus.Bus, log logx.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		alarms: alarmSvc,
		timer:  engine,
		notes:  notes,
		bus:    bus,
		hub:    NewHub(log),
		log:    log,
	}
}

// Start binds the listener and begins forwarding bus events to connected
// WebSocket clients.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.hub.Run(runCtx)
	go s.forwardEvents(runCtx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpSrv = srv

	go func() {
		s.log.Info("api server listening", logx.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server failed", logx.Err(err))
		}
	}()
	return nil
}

// Stop shuts the listener down and disconnects all WebSocket clients.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.httpSrv
	cancel := s.cancel
	s.httpSrv = nil
	s.cancel = nil
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warn("api server shutdown", logx.Err(err))
		}
	}
	if cancel != nil {
		cancel()
	}
}

// forwardEvents streams bus events to the hub as JSON frames.
func (s *Server) forwardEvents(ctx context.Context) {
	events, unsub := s.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b, err := json.Marshal(wsFrame{Scope: string(ev.Scope), Time: ev.Time, Data: ev.Data})
			if err != nil {
				s.log.Warn("event marshal failed", logx.String("scope", string(ev.Scope)), logx.Err(err))
				continue
			}
			s.hub.Broadcast(b)
		}
	}
}

type wsFrame struct {
	Scope string    `json:"scope"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logging)
	r.Use(s.recovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/ws", s.hub.handleWS).Methods("GET")

	api.HandleFunc("/subjects", s.handleListSubjects).Methods("GET")
	api.HandleFunc("/subjects", s.handleCreateSubject).Methods("POST")
	api.HandleFunc("/subjects/{id}", s.handleGetSubject).Methods("GET")
	api.HandleFunc("/subjects/{id}", s.handleUpdateSubject).Methods("PUT")
	api.HandleFunc("/subjects/{id}", s.handleDeleteSubject).Methods("DELETE")
	api.HandleFunc("/subjects/{id}/slots", s.handleListSlots).Methods("GET")
	api.HandleFunc("/subjects/{id}/slots", s.handleCreateSlot).Methods("POST")
	api.HandleFunc("/slots/{id}", s.handleDeleteSlot).Methods("DELETE")

	api.HandleFunc("/tasks", s.handleListTasks).Methods("GET")
	api.HandleFunc("/tasks", s.handleCreateTask).Methods("POST")
	api.HandleFunc("/tasks/{id}", s.handleGetTask).Methods("GET")
	api.HandleFunc("/tasks/{id}", s.handleUpdateTask).Methods("PUT")
	api.HandleFunc("/tasks/{id}", s.handleDeleteTask).Methods("DELETE")
	api.HandleFunc("/tasks/{id}/complete", s.handleCompleteTask).Methods("POST")

	api.HandleFunc("/timer", s.handleTimerState).Methods("GET")
	api.HandleFunc("/timer/start", s.handleTimerStart).Methods("POST")
	api.HandleFunc("/timer/pause", s.handleTimerPause).Methods("POST")
	api.HandleFunc("/timer/reset", s.handleTimerReset).Methods("POST")
	api.HandleFunc("/timer/mode", s.handleTimerMode).Methods("POST")
	api.HandleFunc("/timer/durations", s.handleTimerDurations).Methods("POST")

	api.HandleFunc("/notifications", s.handleNotifications).Methods("GET")

	return r
}

// ---- middleware ----

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Duration("took", time.Since(start)))
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic",
					logx.Any("panic", rec),
					logx.String("path", r.URL.Path),
					logx.String("stack", string(debug.Stack())))
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ---- response helpers ----

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

// writeStoreError maps storage errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no such record")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
