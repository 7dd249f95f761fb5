package testhelpers

import (
	"context"

	"github.com/standardbeagle/ccindex/internal/toolchain"
)

// WidgetHeader declares one class. Line 3 is the width member.
const WidgetHeader = `class Widget {
public:
    int width;
    void draw();
    void resize(int w, int h);
};
`

// WidgetSource uses the header. The caret positions tests use:
//   - 4:9 is after "w.wi"
//   - 5:16 is after "w.resize(1,"
//   - 3:5 is inside run, which starts on line 2
const WidgetSource = `#include "widget.h"
void run() {
    Widget w;
    w.wi
    w.resize(1,
}
`

// NoCompiler fails every invocation, leaving discovery with nothing.
type NoCompiler struct{}

func (NoCompiler) Execute(context.Context, toolchain.Compiler, string, []string) ([]string, []string, bool) {
	return nil, nil, false
}

// FakeCompiler answers like gcc with one search directory and one macro.
type FakeCompiler struct {
	IncludeDir string
}

func (e FakeCompiler) Execute(_ context.Context, _ toolchain.Compiler, _ string, args []string) ([]string, []string, bool) {
	for _, a := range args {
		if a == "-dM" {
			return []string{"#define __GNUC__ 13"}, nil, true
		}
	}
	return nil, []string{
		"#include <...> search starts here:",
		" " + e.IncludeDir,
		"End of search list.",
	}, true
}
