/*
Package server implements a reference pixel server for the form-based
pixel protocol.  Arrays are kept in a badger-backed storage.Store and
uploaded files in a gocloud blob bucket.
*/
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/storage"
	"github.com/rs/cors"
	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"
	"golang.org/x/net/netutil"
)

const (
	// DefaultMaxUploadMB is the in-memory limit when parsing multipart
	// requests.  Larger parts spill to temporary files.
	DefaultMaxUploadMB = 32

	shutdownTimeout = 30 * time.Second
)

// Server answers protocol calls.
type Server struct {
	config config.ServerConfig
	store  *storage.Store
	files  *Files
	events *Events
	secret []byte

	handler http.Handler
}

// New returns a server over an opened store and files bucket.  events may be
// nil.
func New(c *config.Config, store *storage.Store, files *Files, events *Events) *Server {
	s := &Server{
		config: c.Server,
		store:  store,
		files:  files,
		events: events,
	}
	if c.Auth.SecretKey != "" {
		s.secret = []byte(c.Auth.SecretKey)
	}
	s.handler = s.routes()
	return s
}

// Open creates the store, files bucket and event producer described by c.
func Open(ctx context.Context, c *config.Config) (*Server, error) {
	store, err := storage.Open(c.Store)
	if err != nil {
		return nil, err
	}
	files, err := OpenFiles(ctx, c.Files.Bucket, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	events, err := NewEvents(c.Kafka)
	if err != nil {
		files.Close()
		store.Close()
		return nil, err
	}
	return New(c, store, files, events), nil
}

// Close flushes events and closes the files bucket and store.
func (s *Server) Close() error {
	return errors.Join(s.events.Close(), s.files.Close(), s.store.Close())
}

func (s *Server) routes() http.Handler {
	mux := web.New()
	mux.Use(middleware.Recoverer)
	mux.Get("/healthz", s.healthHandler)
	if s.secret != nil {
		mux.Post("/", s.isAuthorized(http.HandlerFunc(s.protocolHandler)))
	} else {
		mux.Post("/", s.protocolHandler)
	}
	if len(s.config.CorsDomains) == 0 {
		return mux
	}
	pixel.Infof("Allowing CORS requests from %v\n", s.config.CorsDomains)
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.CorsDomains,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"store":  s.store.String(),
	})
}

// Listen opens the configured address, limiting simultaneous connections if
// max_connections is set.
func (s *Server) Listen() (net.Listener, error) {
	address := s.config.HTTPAddress
	if address == "" {
		address = config.DefaultHTTPAddress
	}
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	if s.config.MaxConnections > 0 {
		pixel.Infof("Limiting server to %d simultaneous connections\n", s.config.MaxConnections)
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}
	return ln, nil
}

// Serve handles requests on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	pixel.Infof("Pixel server listening at %s ...\n", ln.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		pixel.Infof("Shutting down pixel server at %s ...\n", ln.Addr())
		return srv.Shutdown(shutdownCtx)
	}
}
