package toolchain

import (
	"path/filepath"
	"strconv"
	"strings"
)

const (
	gccSearchStart = "#include <...>"
	gccSearchEnd   = "End of search list."
	frameworkDir   = "(framework directory)"

	msvcVendor  = "Microsoft (R) "
	msvcVersion = "Compiler Version "
)

// ScrapeGCCIncludeDirs extracts the built-in system include directories from
// the stderr of `cpp -v -E -x c++ /dev/null`. Paths are cleaned; framework
// directories keep their path without the annotation.
func ScrapeGCCIncludeDirs(stderr []string) []string {
	var dirs []string
	started := false
	for _, line := range stderr {
		line = strings.TrimSpace(line)
		if !started {
			started = strings.HasPrefix(line, gccSearchStart)
			continue
		}
		if line == "" || strings.HasPrefix(line, gccSearchEnd) {
			break
		}
		line = strings.TrimSpace(strings.TrimSuffix(line, frameworkDir))
		dirs = append(dirs, filepath.Clean(filepath.FromSlash(line)))
	}
	return dirs
}

// ScrapeMacroDump keeps the #define lines of `cpp -E -dM` output, one
// definition per line.
func ScrapeMacroDump(stdout []string) string {
	var b strings.Builder
	for _, line := range stdout {
		line = strings.TrimRight(line, " \t")
		if !strings.HasPrefix(line, "#define ") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// ScrapeMSVCBanner synthesizes _WIN32/_WIN64 and _MSC_VER from the banner
// line cl prints on stderr. Old compilers name the width ("32-bit"), newer
// ones the architecture ("for x64"). The version keeps the major number and
// the first minor digit, so "19.29" gives 1920.
func ScrapeMSVCBanner(banner string) string {
	var b strings.Builder
	if pos := strings.Index(banner, msvcVendor); pos != -1 {
		bit := banner[pos+len(msvcVendor):]
		if len(bit) > 2 {
			bit = bit[:2]
		}
		switch {
		case bit == "32" || strings.Contains(banner, "x86"):
			b.WriteString("#define _WIN32\n")
		case bit == "64" || strings.Contains(banner, "x64"):
			b.WriteString("#define _WIN64\n")
		}
	}
	if pos := strings.Index(banner, msvcVersion); pos != -1 {
		if ver, ok := msvcVersionNumber(banner[pos+len(msvcVersion):]); ok {
			b.WriteString("#define _MSC_VER " + ver + "\n")
		}
	}
	return b.String()
}

func msvcVersionNumber(s string) (string, bool) {
	major, rest, ok := strings.Cut(s, ".")
	if !ok || major == "" || rest == "" {
		return "", false
	}
	if _, err := strconv.Atoi(major); err != nil {
		return "", false
	}
	minor := rest[0]
	if minor < '0' || minor > '9' {
		return "", false
	}
	return major + string(minor) + "0", true
}

// LanguageStandard returns the first -std= (or MSVC /std:) switch in opts.
func LanguageStandard(opts []string) string {
	for _, o := range opts {
		if strings.HasPrefix(o, "-std=") || strings.HasPrefix(o, "-std:") || strings.HasPrefix(o, "/std:") {
			return o
		}
	}
	return ""
}

// DefineSwitches turns the define options of opts into #define lines. fam
// selects the accepted switches: -D for GCC, /D and -D for MSVC.
func DefineSwitches(fam Family, opts []string) string {
	var prefixes []string
	switch fam {
	case FamilyGCC:
		prefixes = []string{"-D"}
	case FamilyMSVC:
		prefixes = []string{"/D", "-D"}
	default:
		return ""
	}

	var b strings.Builder
	for _, o := range opts {
		o = strings.TrimSpace(o)
		for _, p := range prefixes {
			if !strings.HasPrefix(o, p) {
				continue
			}
			def := strings.TrimSpace(o[len(p):])
			if def == "" {
				break
			}
			def = strings.Replace(def, "=", " ", 1)
			b.WriteString("#define " + def + "\n")
			break
		}
	}
	return b.String()
}
