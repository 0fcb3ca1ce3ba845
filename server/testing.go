package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
)

// OpenTest starts a server over an in-memory store and bucket.  Options may
// adjust the configuration before the server is opened.  Both the HTTP test
// server and the pixel server are closed when the test ends.
func OpenTest(tb testing.TB, opts ...func(*config.Config)) (*Server, *httptest.Server) {
	tb.Helper()
	pixel.SetLogMode(pixel.WarningMode)
	c := config.Default()
	c.Files.Bucket = config.DefaultFilesBucket
	for _, opt := range opts {
		opt(c)
	}
	s, err := Open(context.Background(), c)
	if err != nil {
		tb.Fatalf("can't open test pixel server: %v\n", err)
	}
	ts := httptest.NewServer(s.Handler())
	tb.Cleanup(func() {
		ts.Close()
		if err := s.Close(); err != nil {
			tb.Errorf("error closing test pixel server: %v\n", err)
		}
	})
	return s, ts
}
