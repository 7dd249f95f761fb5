package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/mcp"
	"github.com/standardbeagle/ccindex/internal/server"
	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/internal/watcher"
	"github.com/urfave/cli/v2"
)

// watchCommand serves the index on the root's socket and, unless disabled,
// keeps it current with the file system.
func watchCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	cfg.Watch.Enabled = !c.Bool("no-watch")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := service.Open(ctx, cfg, service.Options{Executor: executor})
	if err != nil {
		return err
	}
	defer svc.Close()

	srv, err := startIndexServer(cfg, svc)
	if err != nil {
		return err
	}

	w, err := startWatcher(ctx, cfg, svc)
	if err != nil {
		shutdownIndexServer(srv)
		return err
	}
	defer w.Stop()

	out := c.App.Writer
	fmt.Fprintf(out, "Index server started\n")
	fmt.Fprintf(out, "Socket: %s\n", srv.SocketPath())
	fmt.Fprintf(out, "Root: %s\n", cfg.Project.Root)
	fmt.Fprintf(out, "\nUse 'ccindex shutdown' to stop the server\n")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Wait(gctx); err != nil {
			return nil
		}
		st := svc.Status()
		fmt.Fprintf(out, "Parsed %d file(s), %d token(s)\n", st.Files, st.Tokens)
		return nil
	})
	g.Go(func() error {
		srv.Wait(gctx)
		if ctx.Err() == nil {
			fmt.Fprintln(out, "Server shutdown requested")
		}
		stop()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := shutdownIndexServer(srv); err != nil {
		return err
	}
	fmt.Fprintln(out, "Server shut down cleanly")
	return nil
}

func startIndexServer(cfg *config.Config, svc *service.Service) (*server.IndexServer, error) {
	srv := server.NewIndexServer(svc)
	srv.SetSocketPath(server.GetSocketPathForRoot(cfg.Project.Root))
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start index server: %w", err)
	}
	return srv, nil
}

func shutdownIndexServer(srv *server.IndexServer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func startWatcher(ctx context.Context, cfg *config.Config, svc *service.Service) (*watcher.Watcher, error) {
	w, err := watcher.New(cfg, watcher.NewRegistryHandler(ctx, svc.Registry()))
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w.SetProgressCallbacks(
		func(count int) { debug.LogWatcher("applying %d change(s)\n", count) },
		func(count int, d time.Duration) { debug.LogWatcher("applied %d change(s) in %v\n", count, d) },
	)
	if err := w.Start(cfg.Project.Root); err != nil {
		w.Stop()
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	return w, nil
}

// shutdownCommand sends a shutdown request to the running server
func shutdownCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	client := server.NewClient(cfg.Project.Root)
	defer client.CloseIdleConnections()
	if !client.IsServerRunning() {
		return fmt.Errorf("no server is running for root: %s", cfg.Project.Root)
	}

	fmt.Fprintf(c.App.Writer, "Shutting down server for root: %s\n", cfg.Project.Root)
	if err := client.Shutdown(c.Context, c.Bool("force")); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for client.IsServerRunning() {
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not shut down")
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(c.App.Writer, "Server shut down successfully")
	return nil
}

// mcpCommand serves MCP on stdio. The index is also shared on the root's
// socket so that CLI invocations reuse it.
func mcpCommand(c *cli.Context) error {
	// Anything written to stdout would corrupt the JSON-RPC stream.
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return debug.Fatal("failed to load config: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.Open(ctx, cfg, service.Options{Executor: executor})
	if err != nil {
		return debug.Fatal("failed to open index: %v\n", err)
	}
	defer svc.Close()

	logger := mcp.NewDiagnosticLogger(cfg.Project.Root)
	mcpServer := mcp.NewServer(svc, logger)
	defer mcpServer.Shutdown(context.Background())

	indexServer, err := startIndexServer(cfg, svc)
	if err != nil {
		logger.Printf("Shared index server unavailable: %v", err)
	} else {
		defer shutdownIndexServer(indexServer)
	}

	if err := mcpServer.Start(ctx); err != nil && ctx.Err() == nil {
		return debug.Fatal("MCP server error: %v\n", err)
	}
	return nil
}
