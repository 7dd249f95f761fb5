package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/standardbeagle/ccindex/internal/debug"
	"github.com/standardbeagle/ccindex/internal/errors"
	"github.com/standardbeagle/ccindex/internal/project"
)

// Cache holds discovery results per resolved executable. The zero value is
// ready to use.
type Cache struct {
	mu     sync.Mutex
	dirs   map[string][]string
	macros map[string]string
}

// NewCache returns an empty cache.
func NewCache() *Cache { return &Cache{} }

// SharedCache is the process-wide cache used by discoverers built without
// one.
var SharedCache = NewCache()

func (c *Cache) getDirs(key string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dirs[key]
	return d, ok
}

func (c *Cache) putDirs(key string, dirs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirs == nil {
		c.dirs = make(map[string][]string)
	}
	c.dirs[key] = dirs
}

func (c *Cache) getMacros(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.macros[key]
	return m, ok
}

func (c *Cache) putMacros(key, macros string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.macros == nil {
		c.macros = make(map[string]string)
	}
	c.macros[key] = macros
}

// Reset forgets every cached result.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs = nil
	c.macros = nil
}

// Options tunes discovery.
type Options struct {
	// PlatformCheck skips projects, targets and compilers that do not
	// support the current OS.
	PlatformCheck bool
	// WantPreprocessor enables macro discovery.
	WantPreprocessor bool
}

// Environment is what discovery contributes to one parser.
type Environment struct {
	IncludeDirs []string
	Macros      string
}

// Discoverer computes parser environments from project build settings.
type Discoverer struct {
	exec      Executor
	compilers map[string]Compiler
	defaultID string
	opts      Options
	cache     *Cache

	// overridable for tests
	dirExists func(string) bool
	goos      string
}

// NewDiscoverer builds a discoverer. A nil cache selects SharedCache and an
// empty compiler list selects DefaultCompilers.
func NewDiscoverer(exec Executor, compilers []Compiler, opts Options, cache *Cache) *Discoverer {
	if cache == nil {
		cache = SharedCache
	}
	if len(compilers) == 0 {
		compilers = DefaultCompilers()
	}
	d := &Discoverer{
		exec:      exec,
		compilers: make(map[string]Compiler, len(compilers)),
		defaultID: DefaultCompilerID(),
		opts:      opts,
		cache:     cache,
		dirExists: dirExists,
		goos:      runtime.GOOS,
	}
	for _, c := range compilers {
		d.compilers[c.ID] = c
	}
	return d
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// SetOptions replaces the discovery options.
func (d *Discoverer) SetOptions(opts Options) { d.opts = opts }

// SetDefaultCompiler sets the compiler used for projects naming none.
func (d *Discoverer) SetDefaultCompiler(id string) { d.defaultID = id }

// Compiler looks up a compiler by id.
func (d *Discoverer) Compiler(id string) (Compiler, bool) {
	c, ok := d.compilers[id]
	return c, ok
}

func (d *Discoverer) projectCompiler(p *project.Project) (Compiler, bool) {
	if p != nil && p.Compiler != "" {
		return d.Compiler(p.Compiler)
	}
	return d.Compiler(d.defaultID)
}

func (d *Discoverer) supported(platforms []string) bool {
	return !d.opts.PlatformCheck || project.SupportsPlatform(platforms, d.goos)
}

// Environment runs the whole discovery for a project. A nil project
// describes a standalone file and uses the default compiler only.
func (d *Discoverer) Environment(ctx context.Context, p *project.Project) Environment {
	env := Environment{IncludeDirs: d.AddCompilerDirs(ctx, p)}
	if d.opts.WantPreprocessor {
		env.Macros = d.AddCompilerPredefinedMacros(ctx, p) + d.AddProjectDefinedMacros(p)
	}
	return env
}

// AddCompilerDirs lists the include directories for a project: its base
// path, the project dirs, the dirs of every supported target, and finally
// each involved compiler's own and built-in dirs. Relative dirs are made
// absolute against the base path and duplicates are dropped.
func (d *Discoverer) AddCompilerDirs(ctx context.Context, p *project.Project) []string {
	var dl dirList
	if p == nil {
		if c, ok := d.Compiler(d.defaultID); ok {
			d.addCompilerIncludeDirs(ctx, &dl, c)
		}
		return dl.dirs
	}

	dl.add(p.BasePath())
	if d.supported(p.Platforms) {
		for _, dir := range p.IncludeDirs {
			dl.add(p.Abs(dir))
		}
	}

	var compilers []Compiler
	for i := range p.Targets {
		t := &p.Targets[i]
		if !d.supported(t.Platforms) {
			continue
		}
		for _, dir := range t.IncludeDirs {
			dl.add(p.Abs(dir))
		}
		if t.Compiler != "" {
			if c, ok := d.Compiler(t.Compiler); ok {
				compilers = append(compilers, c)
			}
		}
	}
	if c, ok := d.projectCompiler(p); ok {
		compilers = append(compilers, c)
	}
	if len(compilers) == 0 {
		debug.LogToolchain("AddCompilerDirs: no compilers found for %q\n", p.Name())
	}
	for _, c := range compilers {
		d.addCompilerIncludeDirs(ctx, &dl, c)
	}
	return dl.dirs
}

func (d *Discoverer) addCompilerIncludeDirs(ctx context.Context, dl *dirList, c Compiler) {
	if !d.supported(c.Platforms) {
		return
	}
	for _, dir := range c.IncludeDirs {
		dl.add(dir)
	}
	if c.Family() == FamilyGCC {
		for _, dir := range d.GCCIncludeDirs(ctx, c) {
			dl.add(dir)
		}
	}
}

// GCCIncludeDirs returns the compiler's built-in search directories, stopping
// at the first listed directory that does not exist. Results are cached per
// executable.
func (d *Discoverer) GCCIncludeDirs(ctx context.Context, c Compiler) []string {
	key := c.Program(c.CPP)
	if dirs, ok := d.cache.getDirs(key); ok {
		return dirs
	}
	_, stderr, ok := d.exec.Execute(ctx, c, c.CPP, []string{"-v", "-E", "-x", "c++", nullDevice(d.goos)})
	if !ok {
		debug.LogToolchain("%v\n", errors.NewEnvironmentError(c.ID, key, errors.ErrToolchainFailed))
		return nil
	}

	var dirs []string
	for _, dir := range ScrapeGCCIncludeDirs(stderr) {
		if !d.dirExists(dir) {
			break
		}
		dirs = append(dirs, dir)
		debug.LogToolchain("caching GCC default include dir: %s\n", dir)
	}
	if len(dirs) > 0 {
		d.cache.putDirs(key, dirs)
	}
	return dirs
}

// AddCompilerPredefinedMacros returns the compiler's own predefined macros
// as #define text, or "" when the family is unknown or discovery fails.
func (d *Discoverer) AddCompilerPredefinedMacros(ctx context.Context, p *project.Project) string {
	c, ok := d.projectCompiler(p)
	if !ok || !d.supported(c.Platforms) {
		return ""
	}
	switch c.Family() {
	case FamilyGCC:
		return d.gccMacros(ctx, c, p)
	case FamilyMSVC:
		return d.msvcMacros(ctx, c)
	}
	return ""
}

func (d *Discoverer) gccMacros(ctx context.Context, c Compiler, p *project.Project) string {
	std := d.CompilerStandard(c, p)
	key := c.Program(c.CPP) + "|" + std
	if defs, ok := d.cache.getMacros(key); ok {
		return defs
	}

	args := []string{"-E", "-dM", "-x", "c++"}
	if std != "" {
		args = append(args, std)
	}
	args = append(args, nullDevice(d.goos))
	stdout, _, ok := d.exec.Execute(ctx, c, c.CPP, args)
	if !ok {
		debug.LogToolchain("%v\n", errors.NewEnvironmentError(c.ID, c.Program(c.CPP), errors.ErrToolchainFailed))
		return ""
	}
	defs := ScrapeMacroDump(stdout)
	if defs != "" {
		debug.LogToolchain("caching predefined macros for %s (%d bytes)\n", key, len(defs))
		d.cache.putMacros(key, defs)
	}
	return defs
}

func (d *Discoverer) msvcMacros(ctx context.Context, c Compiler) string {
	key := c.Program(c.C)
	if defs, ok := d.cache.getMacros(key); ok {
		return defs
	}
	_, stderr, ok := d.exec.Execute(ctx, c, c.C, nil)
	if !ok || len(stderr) == 0 {
		debug.LogToolchain("can't get pre-defined macros for MSVC %s\n", key)
		return ""
	}
	defs := ScrapeMSVCBanner(stderr[0])
	if defs != "" {
		d.cache.putMacros(key, defs)
	}
	return defs
}

// CompilerStandard finds the -std switch: compiler options first, then the
// project's, then the first target that sets one.
func (d *Discoverer) CompilerStandard(c Compiler, p *project.Project) string {
	if std := LanguageStandard(c.Options); std != "" {
		return std
	}
	if p == nil {
		return ""
	}
	if std := LanguageStandard(p.CompilerOptions); std != "" {
		return std
	}
	for _, t := range p.Targets {
		if std := LanguageStandard(t.CompilerOptions); std != "" {
			return std
		}
	}
	return ""
}

// AddProjectDefinedMacros turns the define switches of the project, its
// active target and the members of the active virtual target into
// #define text.
func (d *Discoverer) AddProjectDefinedMacros(p *project.Project) string {
	if p == nil {
		return ""
	}
	c, ok := d.projectCompiler(p)
	fam := FamilyOf(p.Compiler)
	if ok {
		fam = c.Family()
	}
	if fam == FamilyUnknown {
		return ""
	}

	var opts []string
	if d.supported(p.Platforms) {
		opts = append(opts, p.CompilerOptions...)
	}
	if t := p.ActiveBuildTarget(); t != nil && d.supported(t.Platforms) {
		opts = append(opts, t.CompilerOptions...)
	}
	for _, t := range p.ExpandedVirtualTarget() {
		if d.supported(t.Platforms) {
			opts = append(opts, t.CompilerOptions...)
		}
	}
	return DefineSwitches(fam, opts)
}

func nullDevice(goos string) string {
	if goos == "windows" {
		return "nul"
	}
	return "/dev/null"
}

type dirList struct {
	dirs []string
	seen map[string]bool
}

func (l *dirList) add(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	dir = filepath.Clean(dir)
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[dir] {
		return
	}
	l.seen[dir] = true
	l.dirs = append(l.dirs, dir)
}
