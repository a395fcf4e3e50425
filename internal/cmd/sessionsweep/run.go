package sessionsweep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Drivers for every registered dialect.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	platformotel "github.com/louisbranch/sessiondb/internal/platform/otel"
	"github.com/louisbranch/sessiondb/internal/session"
	"github.com/louisbranch/sessiondb/internal/session/store"
)

// Run opens the session store and sweeps it on the configured interval until
// ctx is cancelled. Individual sweep failures are logged and the loop keeps
// going; only startup failures abort.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := platformotel.Setup(ctx, "sessionsweep")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	nodeID := cfg.NodeID
	if nodeID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve node id: %w", err)
		}
		nodeID = hostname
	}

	st, err := store.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	if err := st.PrepareTables(ctx); err != nil {
		return fmt.Errorf("prepare session tables: %w", err)
	}

	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, cfg.MetricsAddr)
	}

	scope := session.NewContext(cfg.ContextPath, cfg.VirtualHost, nodeID)
	sweeper := store.NewSweeper(st, scope)

	log.Printf("sweeping %q as node %s every %s", cfg.ContextPath, nodeID, cfg.Interval)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		reaped, err := sweeper.Sweep(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			log.Printf("sweep failed: %v", err)
		case reaped > 0:
			log.Printf("reaped %d expired sessions", reaped)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// serveMetrics exposes the prometheus endpoint and shuts it down with ctx.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
