package pipeline

import (
	"fmt"
	"strings"

	"github.com/moyoez/splitsend-go/tool"
)

const (
	maxCommandLength   = 1000
	linuxPlaceholder   = `cat "Part A..." ... > "Full.mp4" (too many parts to list)`
	windowsPlaceholder = `copy /b ... (too many parts to list)`
)

// MergeCommands returns the shell commands that join the parts back
// together, in part order.
func MergeCommands(names []string, title string) (linux, windows string) {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = `"` + n + `"`
	}
	out := fmt.Sprintf(`"%s - Full.mp4"`, tool.SanitizeFilename(title))

	linux = fmt.Sprintf("cat %s > %s", strings.Join(quoted, " "), out)
	windows = fmt.Sprintf("copy /b %s %s", strings.Join(quoted, "+"), out)
	if len(linux) > maxCommandLength {
		linux = linuxPlaceholder
	}
	if len(windows) > maxCommandLength {
		windows = windowsPlaceholder
	}
	return linux, windows
}

// MergeInstructions renders the Markdown help sent after a multi-part
// upload. It is empty for a single part.
func MergeInstructions(names []string, title string) string {
	if len(names) < 2 {
		return ""
	}
	linux, windows := MergeCommands(names, title)
	var b strings.Builder
	b.WriteString("To merge these parts:\n\n")
	b.WriteString("*Linux/macOS:*\n`" + linux + "`\n\n")
	b.WriteString("*Windows CMD:*\n`" + windows + "`\n\n")
	b.WriteString("*Android:* Use MiXplorer or Total Commander.")
	return b.String()
}
