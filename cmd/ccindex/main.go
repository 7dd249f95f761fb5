package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/ccindex/internal/config"
	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/server"
	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/internal/toolchain"
	"github.com/standardbeagle/ccindex/internal/version"

	"github.com/urfave/cli/v2"
)

// executor overrides the compiler executor. Tests replace it so that no
// real toolchain runs.
var executor toolchain.Executor

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = abs
	}

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if root != "" {
		cfg.Project.Root = root
	}
	if file := c.String("project"); file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve project file %q: %w", file, err)
		}
		cfg.Project.File = abs
	}
	if includes := c.StringSlice("include"); len(includes) > 0 {
		cfg.Include = includes
	}
	if excludes := c.StringSlice("exclude"); len(excludes) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludes...)
	}
	return cfg, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "ccindex",
		Usage:                  "Incremental C/C++ symbol index and code completion",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: .ccindex.kdl in the root)",
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project or workspace file (ccproject.toml, ccworkspace.toml)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Index only files matching glob patterns (e.g., --include 'src/**/*.cpp')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/third_party/**')",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Parse in-process even when an index server is running",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the initial batch parse",
				Value: time.Minute,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Show debug information",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				debug.SetEnabled(true)
				debug.SetDebugOutput(c.App.ErrWriter)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "complete",
				Aliases:   []string{"co"},
				Usage:     "List completions at a caret",
				ArgsUsage: "FILE LINE:COL",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{
						Name:  "exact",
						Usage: "Match whole names instead of prefixes",
					},
					&cli.BoolFlag{
						Name:    "case-sensitive",
						Aliases: []string{"s"},
						Usage:   "Match case",
					},
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"m"},
						Usage:   "Maximum number of completions (0 = all)",
					},
				}, stdinFlag()),
				Action: completeCommand,
			},
			{
				Name:      "calltip",
				Aliases:   []string{"ct"},
				Usage:     "Show the signatures of the call around a caret",
				ArgsUsage: "FILE LINE:COL",
				Flags:     []cli.Flag{stdinFlag()},
				Action:    calltipCommand,
			},
			{
				Name:      "function",
				Aliases:   []string{"fn"},
				Usage:     "Show the function enclosing a caret",
				ArgsUsage: "FILE LINE:COL",
				Flags:     []cli.Flag{stdinFlag()},
				Action:    functionCommand,
			},
			{
				Name:    "tokens",
				Aliases: []string{"t"},
				Usage:   "List indexed tokens",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "List the tokens of the parser owning this file",
					},
					&cli.StringFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "Comma separated kinds (class, function, variable, ...)",
					},
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Case-insensitive name prefix",
					},
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"m"},
						Usage:   "Maximum number of tokens (0 = all)",
					},
					&cli.BoolFlag{
						Name:  "tree",
						Usage: "Show tokens nested under their scopes",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Maximum tree depth with --tree (0 = all)",
					},
				},
				Action: tokensCommand,
			},
			{
				Name:      "functions",
				Usage:     "List the functions implemented in a buffer",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{stdinFlag()},
				Action:    functionsCommand,
			},
			{
				Name:      "reparse",
				Usage:     "Schedule a file for reparsing",
				ArgsUsage: "FILE",
				Action:    reparseCommand,
			},
			{
				Name:   "env",
				Usage:  "Show the discovered include directories and macros",
				Action: envCommand,
			},
			{
				Name:   "status",
				Usage:  "Show parser registry status",
				Action: statusCommand,
			},
			{
				Name:    "watch",
				Aliases: []string{"serve"},
				Usage:   "Run the index server and reparse files as they change",
				Description: `Keeps the index resident and serves queries on a unix socket.
Other ccindex invocations for the same root connect to it automatically.

The server runs until interrupted or shut down with 'ccindex shutdown'.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-watch",
						Usage: "Serve without watching the file system",
					},
				},
				Action: watchCommand,
			},
			{
				Name:    "shutdown",
				Aliases: []string{"stop"},
				Usage:   "Shut down the index server for the root",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Force shutdown even if a batch parse is running",
					},
				},
				Action: shutdownCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: mcpCommand,
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, version.FullInfo())
					return nil
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func stdinFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "stdin",
		Usage: "Read the buffer content from stdin instead of the file",
	}
}

// backend answers queries, either through a running index server or from
// a service opened in-process.
type backend interface {
	Complete(ctx context.Context, req service.CompleteRequest) (*service.CompleteResponse, error)
	CallTip(ctx context.Context, req service.PositionRequest) (*service.CallTipResponse, error)
	CurrentFunction(ctx context.Context, req service.PositionRequest) (*service.FunctionResponse, error)
	Tokens(ctx context.Context, req service.TokensRequest) (*service.TokensResponse, error)
	BufferFunctions(ctx context.Context, req service.BufferRequest) (*service.BufferFunctionsResponse, error)
	Reparse(ctx context.Context, file string) (*service.ReparseResponse, error)
	Environment(ctx context.Context) (*service.EnvironmentResponse, error)
	Status(ctx context.Context) (*service.Status, error)
	Close()
}

type remote struct{ *server.Client }

func (r remote) Close() { r.CloseIdleConnections() }

// local runs against an index opened for this invocation only. Queries
// on a busy parser would answer empty, so it waits for the parser the
// queried file activates.
type local struct {
	*service.Service
	timeout time.Duration
}

func (l local) settle(ctx context.Context, file string) error {
	if err := l.Activate(ctx, file); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.Wait(waitCtx)
}

func (l local) Complete(ctx context.Context, req service.CompleteRequest) (*service.CompleteResponse, error) {
	if err := l.settle(ctx, req.File); err != nil {
		return nil, err
	}
	return l.Service.Complete(ctx, req)
}

func (l local) CallTip(ctx context.Context, req service.PositionRequest) (*service.CallTipResponse, error) {
	if err := l.settle(ctx, req.File); err != nil {
		return nil, err
	}
	return l.Service.CallTip(ctx, req)
}

func (l local) CurrentFunction(ctx context.Context, req service.PositionRequest) (*service.FunctionResponse, error) {
	if err := l.settle(ctx, req.File); err != nil {
		return nil, err
	}
	return l.Service.CurrentFunction(ctx, req)
}

func (l local) Tokens(ctx context.Context, req service.TokensRequest) (*service.TokensResponse, error) {
	if req.File != "" {
		if err := l.settle(ctx, req.File); err != nil {
			return nil, err
		}
	}
	return l.Service.Tokens(ctx, req)
}

func (l local) Environment(ctx context.Context) (*service.EnvironmentResponse, error) {
	return l.Service.Environment(ctx), nil
}

func (l local) Status(context.Context) (*service.Status, error) {
	st := l.Service.Status()
	return &st, nil
}

// openBackend connects to the server for the root when one is running and
// opens the index in-process otherwise.
func openBackend(c *cli.Context, cfg *config.Config) (backend, error) {
	if !c.Bool("local") {
		client := server.NewClient(cfg.Project.Root)
		if client.IsServerRunning() {
			debug.LogConfig("using index server at %s\n", server.GetSocketPathForRoot(cfg.Project.Root))
			return remote{client}, nil
		}
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	svc, err := service.Open(ctx, cfg, service.Options{Executor: executor})
	if err != nil {
		return nil, err
	}
	if err := svc.Wait(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return local{Service: svc, timeout: c.Duration("timeout")}, nil
}

// parsePosition accepts "FILE LINE:COL" or "FILE:LINE:COL".
func parsePosition(args []string) (file string, line, col int, err error) {
	var pos string
	switch len(args) {
	case 1:
		arg := args[0]
		i := strings.LastIndex(arg, ":")
		if i > 0 {
			if j := strings.LastIndex(arg[:i], ":"); j > 0 {
				file, pos = arg[:j], arg[j+1:]
			}
		}
		if file == "" {
			return "", 0, 0, fmt.Errorf("expected FILE LINE:COL, got %q", arg)
		}
	case 2:
		file, pos = args[0], args[1]
	default:
		return "", 0, 0, fmt.Errorf("expected FILE LINE:COL")
	}

	lineStr, colStr, ok := strings.Cut(pos, ":")
	if !ok {
		return "", 0, 0, fmt.Errorf("position %q is not LINE:COL", pos)
	}
	if line, err = strconv.Atoi(lineStr); err != nil {
		return "", 0, 0, fmt.Errorf("invalid line %q", lineStr)
	}
	if col, err = strconv.Atoi(colStr); err != nil {
		return "", 0, 0, fmt.Errorf("invalid column %q", colStr)
	}

	// A server resolves relative names against its own directory.
	if file, err = filepath.Abs(file); err != nil {
		return "", 0, 0, err
	}
	return file, line, col, nil
}

func positionRequest(c *cli.Context) (service.PositionRequest, error) {
	file, line, col, err := parsePosition(c.Args().Slice())
	if err != nil {
		return service.PositionRequest{}, err
	}
	req := service.PositionRequest{File: file, Line: line, Column: col}
	if req.Text, err = readStdin(c); err != nil {
		return service.PositionRequest{}, err
	}
	return req, nil
}

func readStdin(c *cli.Context) (string, error) {
	if !c.Bool("stdin") {
		return "", nil
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
