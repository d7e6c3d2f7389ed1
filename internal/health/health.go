// Package health serves the uptime probes and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"hatsubai/internal/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const notLoggedIn = "Not logged in yet"

// Status is the live state the probes report.
type Status interface {
	Ready() bool
	Identity() string
	GuildCount() int
	ArtistCount() int
}

type rootResponse struct {
	Status    string `json:"status"`
	Bot       string `json:"bot"`
	Timestamp string `json:"timestamp"`
}

type healthResponse struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime"`
	Servers int     `json:"servers"`
	Artists int     `json:"artists"`
	Ready   bool    `json:"ready"`
}

// NewMux returns the handler for /, /health and /metrics.
func NewMux(status Status, started time.Time) http.Handler {
	return newMux(status, started, time.Now)
}

func newMux(status Status, started time.Time, now func() time.Time) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		identity := status.Identity()
		if identity == "" {
			identity = notLoggedIn
		}
		writeJSON(w, http.StatusOK, rootResponse{
			Status:    "Discord bot is running!",
			Bot:       identity,
			Timestamp: now().UTC().Format(time.RFC3339Nano),
		})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ready := status.Ready()
		resp := healthResponse{
			Status:  "healthy",
			Uptime:  now().Sub(started).Seconds(),
			Servers: status.GuildCount(),
			Artists: status.ArtistCount(),
			Ready:   ready,
		}
		code := http.StatusOK
		if !ready {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("%s %s encode response: %v", util.RedBold("!!! ERROR"), util.Cyan("[HTTP]"), err)
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("%s Listening on %s", util.Cyan("[HTTP]"), util.Yellow(ln.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("%s %s shutdown: %v", util.RedBold("!!! ERROR"), util.Cyan("[HTTP]"), err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
