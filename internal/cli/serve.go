package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/tiermem/internal/embed"
	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/server"
	"github.com/lazypower/tiermem/internal/store"
)

var (
	serveDB     string
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDB, "db", "", "database path (overrides config and $TIERMEM_DB)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "keep traces in memory only, no snapshots")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveDB != "" {
		cfg.Database.Path = serveDB
	}
	dims := cfg.Memory.Dimensions

	if cfg.Embedding.Provider == "ollama" {
		if err := embed.ProbeOllama(context.Background(), cfg.Embedding.URL, cfg.Embedding.Model, dims); err != nil {
			fmt.Fprintf(os.Stderr, "warning: ollama unavailable (%v), falling back to hash embeddings\n", err)
			cfg.Embedding.Provider = "hash"
		}
	}
	emb, err := embed.New(cfg.Embedding, dims)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	if c, ok := emb.(*embed.Cached); ok {
		defer c.Close()
	}

	bus := events.NewBus()
	opts := []engine.Option{
		engine.WithBus(bus),
		engine.WithVectorizer(embed.Vectorizer(emb)),
	}

	var db *store.DB
	dbPath := "(memory only)"
	if !serveMemory {
		dbPath = cfg.Database.Path
		if dbPath == "" {
			if dbPath, err = store.DefaultDBPath(); err != nil {
				return fmt.Errorf("resolve db path: %w", err)
			}
		}
		if db, err = store.Open(dbPath); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		opts = append(opts, engine.WithPersister(db))
	}

	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return err
	}

	restored := 0
	if db != nil {
		traces, err := db.LoadSnapshot(context.Background())
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if err := eng.Restore(traces); err != nil {
			return fmt.Errorf("restore snapshot (did memory.dimensions change?): %w", err)
		}
		restored = len(traces)
	}

	eng.StartMaintenance(cfg.Maintenance.Interval)

	srv := server.New(eng, db, bus, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "tiermem serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  embedder: %s (%d dims)\n", emb.Model(), dims)
		fmt.Fprintf(os.Stderr, "  restored: %d traces\n", restored)
		fmt.Fprintf(os.Stderr, "  maintenance: every %s\n", cfg.Maintenance.Interval)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = httpServer.Shutdown(ctx)
	eng.Stop()
	if perr := eng.Persist(ctx); perr != nil {
		fmt.Fprintf(os.Stderr, "final snapshot: %v\n", perr)
	}
	return err
}
