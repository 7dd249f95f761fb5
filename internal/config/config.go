package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/ccindex/internal/parser"
	"github.com/standardbeagle/ccindex/internal/toolchain"
)

// FileName is the configuration file looked up in the home and project
// directories.
const FileName = ".ccindex.kdl"

// Defaults shared by code and configuration parsing.
const (
	DefaultMaxParsers       = 5
	DefaultExecTimeoutMs    = 30000
	DefaultAttachIntervalMs = 500
	DefaultWatchDebounceMs  = 100
)

type Config struct {
	Version          int
	Project          Project
	CodeCompletion   CodeCompletion
	Performance      Performance
	Watch            Watch
	Compilers        []toolchain.Compiler
	Include          []string
	Exclude          []string
	RespectGitignore bool
}

type Project struct {
	Root string
	Name string
	// File is a ccproject.toml or ccworkspace.toml, relative to Root.
	File string
}

type CodeCompletion struct {
	ParserPerWorkspace   bool
	MaxParsers           int // <= 0 disables eviction
	PlatformCheck        bool
	CaseSensitive        bool
	UseSmartSense        bool
	FollowLocalIncludes  bool
	FollowGlobalIncludes bool
	WantPreprocessor     bool
	ParseComplexMacros   bool
	Engine               string // "native" or "treesitter"
	DefaultCompiler      string
}

type Performance struct {
	MaxGoroutines    int // 0 = auto-detect (NumCPU)
	ExecTimeoutMs    int
	AttachIntervalMs int
}

type Watch struct {
	Enabled    bool
	DebounceMs int
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Version: 1,
		Project: Project{Root: cwd, Name: filepath.Base(cwd)},
		CodeCompletion: CodeCompletion{
			MaxParsers:           DefaultMaxParsers,
			PlatformCheck:        true,
			UseSmartSense:        true,
			FollowLocalIncludes:  true,
			FollowGlobalIncludes: true,
			WantPreprocessor:     true,
			Engine:               string(parser.EngineNative),
			DefaultCompiler:      toolchain.DefaultCompilerID(),
		},
		Performance: Performance{
			ExecTimeoutMs:    DefaultExecTimeoutMs,
			AttachIntervalMs: DefaultAttachIntervalMs,
		},
		Watch: Watch{DebounceMs: DefaultWatchDebounceMs},
		Exclude: []string{
			"**/.git/**",
			"**/.*/**",
			"**/CMakeFiles/**",
			"**/*.o",
			"**/*.obj",
		},
		RespectGitignore: true,
	}
}

// ParserOptions converts the code-completion settings into parser options.
func (c *Config) ParserOptions() parser.Options {
	cc := c.CodeCompletion
	engine := parser.Engine(cc.Engine)
	if engine == "" {
		engine = parser.EngineNative
	}
	return parser.Options{
		FollowLocalIncludes:  cc.FollowLocalIncludes,
		FollowGlobalIncludes: cc.FollowGlobalIncludes,
		WantPreprocessor:     cc.WantPreprocessor,
		ParseComplexMacros:   cc.ParseComplexMacros,
		Engine:               engine,
		MaxWorkers:           c.Performance.MaxGoroutines,
	}
}

// DiscoveryOptions converts the settings that drive compiler discovery.
func (c *Config) DiscoveryOptions() toolchain.Options {
	return toolchain.Options{
		PlatformCheck:    c.CodeCompletion.PlatformCheck,
		WantPreprocessor: c.CodeCompletion.WantPreprocessor,
	}
}

// CompilerTable returns the configured compilers, or the built-in table when
// none are configured.
func (c *Config) CompilerTable() []toolchain.Compiler {
	if len(c.Compilers) == 0 {
		return toolchain.DefaultCompilers()
	}
	return c.Compilers
}

func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.Performance.ExecTimeoutMs) * time.Millisecond
}

func (c *Config) AttachInterval() time.Duration {
	return time.Duration(c.Performance.AttachIntervalMs) * time.Millisecond
}

func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Watch.DebounceMs) * time.Millisecond
}

// ProjectFile resolves the configured project file against the root.
func (c *Config) ProjectFile() string {
	if c.Project.File == "" {
		return ""
	}
	if filepath.IsAbs(c.Project.File) {
		return c.Project.File
	}
	return filepath.Join(c.Project.Root, c.Project.File)
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot loads ~/.ccindex.kdl as a base and the project's file on top
// of it. path, when set, names the project file explicitly; otherwise it is
// looked up in rootDir (or the working directory).
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	var projectConfig *Config
	var err error
	if path != "" {
		projectConfig, err = LoadKDLFile(path, searchDir)
	} else {
		projectConfig, err = LoadKDL(searchDir)
	}
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = absOr(searchDir)
		baseConfig.Project.Name = filepath.Base(baseConfig.Project.Root)
		cfg = baseConfig
	default:
		cfg = Default()
		cfg.Project.Root = absOr(searchDir)
		cfg.Project.Name = filepath.Base(cfg.Project.Root)
	}

	if cfg.RespectGitignore {
		cfg.EnrichExclusionsWithGitignore()
	}
	cfg.EnrichExclusionsWithBuildArtifacts()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func absOr(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

// mergeConfigs merges a base config with a project config. The project wins
// everywhere except that base exclusions are kept and base compilers not
// redefined by the project stay available.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		merged.Exclude = DeduplicatePatterns(append(append([]string{}, base.Exclude...), project.Exclude...))
	}

	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	if len(base.Compilers) > 0 {
		byID := make(map[string]bool, len(project.Compilers))
		compilers := append([]toolchain.Compiler{}, project.Compilers...)
		for _, c := range project.Compilers {
			byID[c.ID] = true
		}
		for _, c := range base.Compilers {
			if !byID[c.ID] {
				compilers = append(compilers, c)
			}
		}
		merged.Compilers = compilers
	}

	return &merged
}

// EnrichExclusionsWithBuildArtifacts adds the build directories found under
// the project root to the exclusion list.
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}
	detector := NewBuildArtifactDetector(c.Project.Root)
	if patterns := detector.DetectOutputDirectories(); len(patterns) > 0 {
		c.Exclude = DeduplicatePatterns(append(c.Exclude, patterns...))
	}
}

// EnrichExclusionsWithGitignore adds the root .gitignore patterns to the
// exclusion list.
func (c *Config) EnrichExclusionsWithGitignore() {
	if c.Project.Root == "" {
		return
	}
	gp := NewGitignoreParser()
	if err := gp.LoadGitignore(c.Project.Root); err != nil {
		return
	}
	if patterns := gp.ExclusionPatterns(); len(patterns) > 0 {
		c.Exclude = DeduplicatePatterns(append(c.Exclude, patterns...))
	}
}
