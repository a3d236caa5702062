package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lazypower/mnemo/internal/config"
	"github.com/lazypower/mnemo/internal/engine"
	"github.com/lazypower/mnemo/internal/server"
	"github.com/lazypower/mnemo/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	emb := pickEmbedder(db, cfg)
	eng := engine.New(db, emb)

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("mnemo serving", "addr", addr, "db", dbPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", "error", err)
		}
	}()

	<-done
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	eng.Wait()
	return nil
}

// pickEmbedder probes Ollama and falls back to the TF-IDF embedder when
// it is unreachable. A nil embedder disables semantic search entirely.
func pickEmbedder(db *store.DB, cfg config.Config) engine.Embedder {
	if engine.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
		log.Info("embedder ready", "provider", "ollama", "model", cfg.Embedding.Model)
		return engine.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	}

	emb, err := engine.NewTFIDFEmbedder(db, 512)
	if err != nil {
		log.Warn("tfidf embedder init failed, semantic search disabled", "error", err)
		return nil
	}
	log.Info("embedder ready", "provider", "tfidf", "note", "ollama unreachable")
	return emb
}
