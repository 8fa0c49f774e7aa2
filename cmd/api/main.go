package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/sirupsen/logrus"

    "cabdispatch/internal/api"
    "cabdispatch/internal/buildinfo"
    "cabdispatch/internal/config"
    "cabdispatch/internal/logging"
)

func main() {
    configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
    flag.Parse()

    cfg, err := config.Load(*configPath)
    if err != nil {
        fmt.Fprintf(os.Stderr, "config: %v\n", err)
        os.Exit(1)
    }
    log, err := logging.New(cfg.Logging)
    if err != nil {
        fmt.Fprintf(os.Stderr, "logging: %v\n", err)
        os.Exit(1)
    }

    srvDeps, err := api.NewServer(cfg, log)
    if err != nil {
        log.WithError(err).Fatal("failed to init server")
    }

    addr := fmt.Sprintf(":%d", cfg.Server.Port)
    srv := &http.Server{
        Addr:              addr,
        Handler:           srvDeps.Handler(),
        ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    go func() {
        log.WithFields(logrus.Fields{"addr": addr, "version": buildinfo.Version, "storage": cfg.Storage.Backend()}).Info("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.WithError(err).Fatal("server error")
        }
    }()

    <-ctx.Done()
    log.Info("shutting down")
    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.WithError(err).Warn("graceful shutdown failed")
    }
    if err := srvDeps.Close(); err != nil {
        log.WithError(err).Warn("close store")
    }
}
