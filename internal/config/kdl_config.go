package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/toolchain"
)

// LoadKDL loads dir/.ccindex.kdl. It returns nil, nil when the file does not
// exist.
func LoadKDL(dir string) (*Config, error) {
	kdlPath := filepath.Join(dir, FileName)
	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadKDLFile(kdlPath, dir)
}

// LoadKDLFile loads a configuration file. A relative project root in the
// file is resolved against the file's directory; without one, defaultRoot
// is used.
func LoadKDLFile(path, defaultRoot string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError("read", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	if cfg.Project.Root != "" {
		if !filepath.IsAbs(cfg.Project.Root) {
			cfg.Project.Root = filepath.Join(filepath.Dir(path), cfg.Project.Root)
		}
		cfg.Project.Root = filepath.Clean(cfg.Project.Root)
	} else {
		cfg.Project.Root = absOr(defaultRoot)
	}
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}
	debug.LogConfig("loaded %s (root %s)\n", path, cfg.Project.Root)
	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()
	cfg.Project = Project{}

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, errors.NewConfigError("kdl", "", fmt.Errorf("failed to parse KDL config: %w", err))
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "project":
			for _, cn := range n.Children { // project { root "." name "foo" file "ccproject.toml" }
				assignSimpleString(cn, "root", func(v string) { cfg.Project.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Project.Name = v })
				assignSimpleString(cn, "file", func(v string) { cfg.Project.File = v })
			}
		case "codecompletion":
			parseCodeCompletion(&cfg.CodeCompletion, n)
		case "performance":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_goroutines":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MaxGoroutines = v
					}
				case "exec_timeout_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.ExecTimeoutMs = v
					}
				case "attach_interval_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.AttachIntervalMs = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "enabled":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Watch.Enabled = b
					}
				case "debounce_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		case "compilers":
			for _, cn := range n.Children {
				if nodeName(cn) != "compiler" {
					continue
				}
				c, err := parseCompiler(cn)
				if err != nil {
					return nil, err
				}
				cfg.Compilers = append(cfg.Compilers, c)
			}
		case "include":
			cfg.Include = append(cfg.Include, collectStringArgs(n)...)
		case "exclude":
			// an exclude block replaces the defaults
			cfg.Exclude = collectStringArgs(n)
		case "respect_gitignore":
			if b, ok := firstBoolArg(n); ok {
				cfg.RespectGitignore = b
			}
		}
	}
	return cfg, nil
}

func parseCodeCompletion(cc *CodeCompletion, n *document.Node) {
	bools := map[string]*bool{
		"parser_per_workspace":   &cc.ParserPerWorkspace,
		"platform_check":         &cc.PlatformCheck,
		"case_sensitive":         &cc.CaseSensitive,
		"use_smart_sense":        &cc.UseSmartSense,
		"follow_local_includes":  &cc.FollowLocalIncludes,
		"follow_global_includes": &cc.FollowGlobalIncludes,
		"want_preprocessor":      &cc.WantPreprocessor,
		"parse_complex_macros":   &cc.ParseComplexMacros,
	}
	for _, cn := range n.Children {
		name := nodeName(cn)
		if target, ok := bools[name]; ok {
			if b, ok := firstBoolArg(cn); ok {
				*target = b
			}
			continue
		}
		switch name {
		case "max_parsers":
			if v, ok := firstIntArg(cn); ok {
				cc.MaxParsers = v
			}
		case "engine":
			if s, ok := firstStringArg(cn); ok {
				cc.Engine = s
			}
		case "default_compiler":
			if s, ok := firstStringArg(cn); ok {
				cc.DefaultCompiler = s
			}
		}
	}
}

// parseCompiler reads compiler "id" { master_path; cpp; c; include_dirs {};
// options {}; platforms }.
func parseCompiler(n *document.Node) (toolchain.Compiler, error) {
	var c toolchain.Compiler
	id, ok := firstStringArg(n)
	if !ok || id == "" {
		return c, errors.NewConfigError("compilers.compiler", "", errors.ErrMissingName)
	}
	c.ID = id
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "master_path":
			if s, ok := firstStringArg(cn); ok {
				c.MasterPath = s
			}
		case "cpp":
			if s, ok := firstStringArg(cn); ok {
				c.CPP = s
			}
		case "c":
			if s, ok := firstStringArg(cn); ok {
				c.C = s
			}
		case "include_dirs":
			c.IncludeDirs = append(c.IncludeDirs, collectStringArgs(cn)...)
		case "options":
			c.Options = append(c.Options, collectStringArgs(cn)...)
		case "platforms":
			c.Platforms = append(c.Platforms, collectStringArgs(cn)...)
		}
	}
	if c.CPP == "" {
		c.CPP = c.C
	}
	if c.C == "" {
		c.C = c.CPP
	}
	return c, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

// collectStringArgs accepts both the inline form (exclude "a" "b") and the
// block form (exclude { "a"; "b" }), where each string is a child node name.
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}
