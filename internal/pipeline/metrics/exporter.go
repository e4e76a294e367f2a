package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter serves the Prometheus registry over HTTP at /metrics.
type Exporter struct {
	srv  *http.Server
	addr string
}

// StartExporter binds addr and serves /metrics in a background goroutine
// until Close. Use ":9090" style addresses; ":0" picks a free port, which
// Addr reports.
func StartExporter(addr string) (*Exporter, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go srv.Serve(ln)

	return &Exporter{srv: srv, addr: ln.Addr().String()}, nil
}

// Addr returns the address the exporter is listening on.
func (e *Exporter) Addr() string {
	return e.addr
}

// Close stops serving, letting in-flight scrapes finish.
func (e *Exporter) Close(ctx context.Context) error {
	return e.srv.Shutdown(ctx)
}
