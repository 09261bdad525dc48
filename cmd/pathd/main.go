// Command pathd serves grid path requests over HTTP and WebSocket.
//
//	pathd -config configs/pathd.yaml -watch
//	pathd schema -out configs/pathd.schema.json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdrpinto/gridpath"
	"github.com/pdrpinto/gridpath/internal/config"
	"github.com/pdrpinto/gridpath/internal/httpapi"
	"github.com/pdrpinto/gridpath/internal/watch"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "schema" {
		err = runSchema(os.Args[2:], os.Stdout)
	} else {
		err = run(ctx, os.Args[1:])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pathd: %v\n", err)
		os.Exit(1)
	}
}

func runSchema(args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("schema", flag.ContinueOnError)
	outPath := flags.String("out", "", "path to write the JSON schema (default stdout)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')
	if *outPath == "" {
		_, err = stdout.Write(data)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmpPath := *outPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, *outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("pathd", flag.ContinueOnError)
	configPath := flags.String("config", "", "YAML configuration file (built-in defaults when empty)")
	addr := flags.String("addr", "", "listen address, overrides server.addr")
	watchConfig := flags.Bool("watch", false, "regenerate the grid when the configuration file changes")
	if err := flags.Parse(args); err != nil {
		return err
	}

	file := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		file = loaded
	}
	if *addr != "" {
		file.Server.Addr = *addr
	}
	if *watchConfig && *configPath == "" {
		return errors.New("-watch needs -config")
	}

	logger := file.Log.Logger(os.Stderr)
	slog.SetDefault(logger)

	gridConfig, err := watch.WorldGrid(file)
	if err != nil {
		return err
	}
	service, err := gridpath.NewService(gridConfig,
		gridpath.WithLogger(logger),
		gridpath.WithMaxConcurrentSearches(file.Server.MaxConcurrentSearches),
		gridpath.WithSearchOptions(file.SearchOptions()...),
	)
	if err != nil {
		return err
	}
	defer service.Close()

	grid := service.Grid()
	logger.Info("grid_ready",
		slog.Int("width", grid.Width()),
		slog.Int("height", grid.Height()),
		slog.Uint64("version", service.GridVersion()),
	)

	options := httpapi.Options{
		Logger:    logger,
		ResultTTL: file.Server.ResultTTL.Std(),
	}
	var reloader *watch.Reloader
	if *configPath != "" {
		reloader = &watch.Reloader{Path: *configPath, Service: service, Logger: logger}
		options.Reloader = reloader
	}
	api := httpapi.New(service, options)

	var watcher *watch.Watcher
	if *watchConfig {
		watcher, err = watch.NewWatcher(watch.DefaultDebounce, *configPath)
		if err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              file.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http_listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), file.Server.ShutdownTimeout.Std())
		defer cancel()
		logger.Info("http_shutdown")
		return server.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		group.Go(func() error {
			defer watcher.Close()
			return reloader.Run(groupCtx, watcher)
		})
	}

	return group.Wait()
}
