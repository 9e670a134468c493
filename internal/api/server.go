package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/TextDrop/internal/config"
	"github.com/dharsanguruparan/TextDrop/internal/events"
	"github.com/dharsanguruparan/TextDrop/internal/issuer"
	"github.com/dharsanguruparan/TextDrop/internal/logging"
	"github.com/dharsanguruparan/TextDrop/internal/model"
	"github.com/dharsanguruparan/TextDrop/internal/queue"
)

const maxBodyBytes = 1 << 20

// Issuer mints upload addresses.
type Issuer interface {
	Issue(ctx context.Context, req model.UploadRequest) issuer.Response
}

// Server exposes the address-issuance endpoint and the storage event
// webhook.
type Server struct {
	cfg    *config.Config
	issuer Issuer
	queue  queue.Enqueuer
	log    *logging.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server. enq may be nil when events arrive some other way;
// POST /events then answers 503.
func New(cfg *config.Config, iss Issuer, enq queue.Enqueuer, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{cfg: cfg, issuer: iss, queue: enq, log: log}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Post("/presign", s.handlePresign)
	r.Post("/events", s.handleEvents)
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info(ctx, "api listening", "address", s.cfg.Address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req model.UploadRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, issuer.Response{Error: "invalid request body"})
		return
	}
	resp := s.issuer.Issue(r.Context(), req)
	s.respondJSON(w, resp.StatusCode, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		http.Error(w, "event ingress disabled", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	evs, err := events.Decode(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, ev := range evs {
		if err := queue.EnqueueObjectCreated(r.Context(), s.queue, ev); err != nil {
			s.log.Error(r.Context(), "enqueue event failed", "bucket", ev.Bucket, "key", ev.Key, "error", err)
			http.Error(w, "failed to queue event", http.StatusInternalServerError)
			return
		}
	}
	s.respondJSON(w, http.StatusAccepted, map[string]int{"accepted": len(evs)})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn(context.Background(), "encode response", "error", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "OPTIONS,POST,GET")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(chimiddleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(chimiddleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), chimiddleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
