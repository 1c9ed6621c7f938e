package version

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func withFingerprint(t *testing.T, v, commit, date string) {
	t.Helper()
	origV, origC, origD := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = v, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = origV, origC, origD })
}

func TestString(t *testing.T) {
	tests := []struct {
		version, commit, want string
	}{
		{"1.2.3", "", "1.2.3"},
		{"1.2.3", "abc123", "1.2.3 (abc123)"},
		{"0.1.0-dev", "1234567890abcdef1234", "0.1.0-dev (1234567890ab)"},
	}
	for _, tt := range tests {
		withFingerprint(t, tt.version, tt.commit, "")
		if got := String(); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestWriteBanner(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })

	withFingerprint(t, "0.3.0-rc.1", "deadbeef", "2026-01-15T10:30:00Z")
	var buf bytes.Buffer
	if err := WriteBanner(&buf); err != nil {
		t.Fatalf("banner: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"novus 0.3.0-rc.1\n", "commit   deadbeef", "built    2026-01-15T10:30:00Z", "schema   1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in banner:\n%s", want, out)
		}
	}

	withFingerprint(t, "1.0.0", "", "")
	buf.Reset()
	_ = WriteBanner(&buf)
	if strings.Contains(buf.String(), "commit") || strings.Contains(buf.String(), "built") {
		t.Fatalf("expected empty fields to be omitted:\n%s", buf.String())
	}
}
