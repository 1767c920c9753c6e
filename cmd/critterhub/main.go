// critterhub is the authoritative remote store: versioned pet snapshots
// in SQLite with websocket change fan-out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pwillett/critter/internal/remote/hubserver"
)

func main() {
	addr := flag.String("addr", ":8420", "listen address")
	dbPath := flag.String("db", "critterhub.db", "path to the SQLite database")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*addr, *dbPath); err != nil {
		fmt.Fprintln(os.Stderr, "critterhub:", err)
		os.Exit(1)
	}
}

func run(addr, dbPath string) error {
	hub, err := hubserver.Open(dbPath)
	if err != nil {
		return err
	}
	defer hub.Close()

	srv := &http.Server{
		Addr:    addr,
		Handler: hub.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("hub: listening", "addr", addr, "db", dbPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("hub: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
