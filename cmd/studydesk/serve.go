package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/studydesk/internal/catalog"
	"git.sr.ht/~jakintosh/studydesk/internal/store"
	"git.sr.ht/~jakintosh/studydesk/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI",
	Long: `Run the web UI on --addr (default :8080).

With --dev the server uses a seeded in-memory store and nothing is
persisted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (env: STUDYDESK_ADDR)")
	serveCmd.Flags().Bool("dev", false, "Run against a seeded in-memory store")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer s.Close()

	if cfg.Dev {
		if mem, ok := s.(*store.InMemoryStore); ok {
			if err := mem.Seed(ctx); err != nil {
				log.Fatalf("Failed to seed store: %v", err)
			}
		}
	}

	srv, err := web.NewServer(catalog.NewManager(s))
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
		// ends open task streams on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		if cfg.Dev {
			log.Printf("Starting server in DEV mode on %s...", cfg.Addr)
		} else {
			log.Printf("Starting server on %s (%s store)...", cfg.Addr, cfg.Store.Driver)
		}
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
