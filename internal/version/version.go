// Package version holds the build fingerprint of the novus command.
// The variables are overridden at build time via -ldflags -X.
package version

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"novus/internal/novasm"
)

var (
	// Version is the semantic version, without a leading "v".
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	nameColor  = color.New(color.FgCyan, color.Bold)
	coreColor  = color.New(color.FgYellow, color.Bold)
	labelColor = color.New(color.FgHiBlack)
)

// String returns the one-line form used by --version.
func String() string {
	s := Version
	if GitCommit != "" {
		s += " (" + shortCommit(GitCommit) + ")"
	}
	return s
}

// WriteBanner prints the detailed version block. Colour follows
// color.NoColor, which fatih/color derives from the output terminal.
func WriteBanner(w io.Writer) error {
	core, pre, _ := strings.Cut(Version, "-")
	var b strings.Builder
	b.WriteString(nameColor.Sprint("novus") + " " + coreColor.Sprint(core))
	if pre != "" {
		b.WriteString("-" + pre)
	}
	b.WriteString("\n")
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "  %s %s\n", labelColor.Sprintf("%-8s", label), value)
		}
	}
	field("commit", GitCommit)
	field("built", BuildDate)
	field("schema", fmt.Sprint(novasm.SchemaVersion))
	_, err := io.WriteString(w, b.String())
	return err
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
