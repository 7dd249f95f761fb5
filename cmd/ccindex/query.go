package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/ccindex/internal/display"
	"github.com/standardbeagle/ccindex/internal/service"
	"github.com/standardbeagle/ccindex/pkg/pathutil"

	"github.com/urfave/cli/v2"
)

// output writes v as indented JSON under --json, and calls text otherwise.
func output(c *cli.Context, v any, text func(w io.Writer)) error {
	if c.Bool("json") {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(c.App.Writer, string(data))
		return nil
	}
	text(c.App.Writer)
	return nil
}

// withBackend opens a backend for the duration of fn. fn also gets the
// project root, which text output makes paths relative to.
func withBackend(c *cli.Context, fn func(b backend, root string) error) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	b, err := openBackend(c, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b, cfg.Project.Root)
}

// busy prints why the answer is empty. It reports false when the parser
// was idle.
func busy(w io.Writer, reason string) bool {
	if reason == "" {
		return false
	}
	fmt.Fprintf(w, "Parser busy: %s\n", reason)
	return true
}

func location(file string, line int) string {
	if file == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func completeCommand(c *cli.Context) error {
	pos, err := positionRequest(c)
	if err != nil {
		return err
	}
	req := service.CompleteRequest{
		PositionRequest: pos,
		Exact:           c.Bool("exact"),
		CaseSensitive:   c.Bool("case-sensitive"),
		Max:             c.Int("max"),
	}
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.Complete(c.Context, req)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			if busy(w, resp.Busy) {
				return
			}
			for _, item := range pathutil.ToRelativeCompletions(resp.Items, root) {
				fmt.Fprintf(w, "%-30s %-12s %-20s %s\n", item.Display, item.Kind, item.Scope, location(item.File, item.Line))
			}
			if resp.Total > len(resp.Items) {
				fmt.Fprintf(w, "... %d more\n", resp.Total-len(resp.Items))
			}
			if resp.Global {
				fmt.Fprintln(w, "(expression did not resolve; showing global matches)")
			}
		})
	})
}

func calltipCommand(c *cli.Context) error {
	req, err := positionRequest(c)
	if err != nil {
		return err
	}
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.CallTip(c.Context, req)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			if busy(w, resp.Busy) {
				return
			}
			if len(resp.Tips) == 0 {
				fmt.Fprintln(w, "No call tips")
				return
			}
			for _, tip := range resp.Tips {
				fmt.Fprintln(w, tip)
			}
			fmt.Fprintf(w, "argument %d\n", resp.TypedCommas+1)
		})
	})
}

func functionCommand(c *cli.Context) error {
	req, err := positionRequest(c)
	if err != nil {
		return err
	}
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.CurrentFunction(c.Context, req)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			if busy(w, resp.Busy) {
				return
			}
			if !resp.Found {
				fmt.Fprintln(w, "No enclosing function")
				return
			}
			fmt.Fprintf(w, "%s%s (line %d)\n", resp.Namespace, resp.Proc, resp.Line)
		})
	})
}

func tokensCommand(c *cli.Context) error {
	req := service.TokensRequest{
		Kind: c.String("kind"),
		Name: c.String("name"),
		Max:  c.Int("max"),
	}
	if file := c.String("file"); file != "" {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		req.File = abs
	}
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.Tokens(c.Context, req)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			if busy(w, resp.Busy) {
				return
			}
			tokens := pathutil.ToRelativeTokens(resp.Tokens, root)
			if c.Bool("tree") {
				formatter := display.NewTreeFormatter(display.FormatterOptions{
					ShowLines: true,
					MaxDepth:  c.Int("depth"),
				})
				fmt.Fprint(w, formatter.Format(display.BuildScopeTree(tokens)))
				return
			}
			for _, tok := range tokens {
				name := tok.Name
				if tok.Scope != "" {
					name = tok.Scope + "::" + tok.Name
				}
				fmt.Fprintf(w, "%-12s %s%s  %s\n", tok.Kind, name, tok.Args, location(tok.File, tok.Line))
			}
			fmt.Fprintf(w, "%d of %d token(s)\n", len(resp.Tokens), resp.Total)
		})
	})
}

func functionsCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected FILE")
	}
	file, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	req := service.BufferRequest{File: file}
	if req.Text, err = readStdin(c); err != nil {
		return err
	}
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.BufferFunctions(c.Context, req)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			for _, fn := range resp.Functions {
				fmt.Fprintf(w, "%5d  %s\n", fn.Line, fn.Display)
			}
		})
	})
}

func reparseCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected FILE")
	}
	file, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.Reparse(c.Context, file)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			if resp.Scheduled {
				fmt.Fprintf(w, "Scheduled %s\n", pathutil.ToRelative(resp.File, root))
			} else {
				fmt.Fprintf(w, "%s is not part of any parser\n", pathutil.ToRelative(resp.File, root))
			}
		})
	})
}

func envCommand(c *cli.Context) error {
	return withBackend(c, func(b backend, root string) error {
		resp, err := b.Environment(c.Context)
		if err != nil {
			return err
		}
		return output(c, resp, func(w io.Writer) {
			fmt.Fprintf(w, "Project: %s\n", resp.Project)
			fmt.Fprintf(w, "Include directories (%d):\n", len(resp.IncludeDirs))
			for _, dir := range resp.IncludeDirs {
				fmt.Fprintf(w, "  %s\n", dir)
			}
			if macros := strings.TrimSpace(resp.Macros); macros != "" {
				fmt.Fprintln(w, "Macros:")
				for _, line := range strings.Split(macros, "\n") {
					fmt.Fprintf(w, "  %s\n", line)
				}
			}
		})
	})
}

func statusCommand(c *cli.Context) error {
	return withBackend(c, func(b backend, root string) error {
		st, err := b.Status(c.Context)
		if err != nil {
			return err
		}
		return output(c, st, func(w io.Writer) {
			state := "ready"
			if !st.Ready {
				state = "parsing"
				if st.Busy != "" {
					state += " (" + st.Busy + ")"
				}
			}
			fmt.Fprintf(w, "Status:     %s\n", state)
			fmt.Fprintf(w, "Active:     %s\n", st.Active)
			fmt.Fprintf(w, "Parsers:    %d\n", st.Parsers)
			fmt.Fprintf(w, "Files:      %d\n", st.Files)
			fmt.Fprintf(w, "Tokens:     %d\n", st.Tokens)
			fmt.Fprintf(w, "Refreshes:  %d\n", st.Refreshes)
			if len(st.Standalone) > 0 {
				fmt.Fprintf(w, "Standalone: %s\n", strings.Join(st.Standalone, ", "))
			}
		})
	})
}
