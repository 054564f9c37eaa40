// Package server exposes the validation proxy over HTTP.
package server

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/huyen-pk/SiVa/config"
	"github.com/huyen-pk/SiVa/document"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// Validator is the validation entry point, normally a proxy.ValidationProxy.
type Validator interface {
	Validate(doc *document.ProxyDocument) (string, error)
}

// Options configures a Server.
type Options struct {
	// MaxRequestBytes limits the validation request body. Zero means no limit.
	MaxRequestBytes int64
	// OriginAllowed is the allowed CORS origin. Empty allows any origin.
	OriginAllowed string
}

// Server serves validation, liveness and readiness requests.
type Server struct {
	validator Validator
	opts      Options
	ready     atomic.Bool
}

// New creates a server. It reports not ready until SetReady(true).
func New(validator Validator, opts Options) *Server {
	return &Server{validator: validator, opts: opts}
}

// SetReady changes the readiness reported on /ready.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Router returns the routes without middleware.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/validate", s.Validate).Methods(http.MethodPost)
	router.HandleFunc("/live", s.HandleLiveRequest).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.HandleReadyRequest).Methods(http.MethodGet)
	return router
}

// Handler returns the routes wrapped with request ids, access logging, CORS,
// compression and panic recovery.
func (s *Server) Handler() http.Handler {
	var h http.Handler = handlers.CustomLoggingHandler(io.Discard, s.Router(), logRequest)
	h = withRequestID(h)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedHeaders([]string{"Connection", "Accept-Encoding", "Content-Encoding", "X-Requested-With", "Content-Type", "Accept", RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
	}
	if s.opts.OriginAllowed != "" {
		corsOptions = append(corsOptions, handlers.AllowedOrigins([]string{s.opts.OriginAllowed}))
	}
	h = handlers.CORS(corsOptions...)(h)
	h = handlers.CompressHandler(h)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(h)
}

// NewHTTPServer creates the http.Server for conf.
func NewHTTPServer(conf *config.ServerConfig, s *Server) *http.Server {
	log.Infof("Listen addr = %s", conf.ListenAddress)
	return &http.Server{
		Handler:      s.Handler(),
		Addr:         conf.ListenAddress,
		ReadTimeout:  time.Duration(conf.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.WriteTimeout) * time.Second,
	}
}

type requestIDKey struct{}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// withRequestID keeps a client supplied request id or assigns a new one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	entry := log.WithFields(log.Fields{
		"requestId": params.Request.Header.Get(RequestIDHeader),
		"method":    params.Request.Method,
		"path":      params.URL.Path,
		"status":    params.StatusCode,
		"size":      params.Size,
		"duration":  time.Since(params.TimeStamp).String(),
	})
	if params.StatusCode >= http.StatusInternalServerError {
		entry.Warn("Request failed")
		return
	}
	entry.Info("Request served")
}
