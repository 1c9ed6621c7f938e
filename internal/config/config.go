// Package config loads novus.toml, the optional settings file read by the
// novus command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"novus/internal/vm"
)

// FileName is the settings file looked up from the working directory
// upwards.
const FileName = "novus.toml"

// Config is the resolved configuration.
type Config struct {
	Path string // empty when no file was found
	VM   vm.Settings
	Jobs int // 0 means GOMAXPROCS
}

// Default returns the configuration used without a settings file.
func Default() Config {
	return Config{VM: vm.DefaultSettings()}
}

type fileConfig struct {
	VM    vmSection    `toml:"vm"`
	Net   netSection   `toml:"net"`
	Build buildSection `toml:"build"`
}

type vmSection struct {
	GCInterval string `toml:"gc_interval"`
	HeapLimit  string `toml:"heap_limit"`
	EvalStack  int    `toml:"eval_stack"`
	ConstStack int    `toml:"const_stack"`
	CallStack  int    `toml:"call_stack"`
}

type netSection struct {
	ConnectTimeout string `toml:"connect_timeout"`
}

type buildSection struct {
	Jobs int `toml:"jobs"`
}

// Find returns the path of the nearest settings file at or above startDir.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Discover loads the nearest settings file, or the defaults when none exists.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Load reads path. Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	cfg := Default()
	cfg.Path = path
	s := &cfg.VM

	if meta.IsDefined("vm", "gc_interval") {
		if s.GCInterval, err = ParseSize(fc.VM.GCInterval); err != nil {
			return Config{}, fmt.Errorf("%s: [vm].gc_interval: %w", path, err)
		}
	}
	if meta.IsDefined("vm", "heap_limit") {
		if s.HeapLimit, err = ParseSize(fc.VM.HeapLimit); err != nil {
			return Config{}, fmt.Errorf("%s: [vm].heap_limit: %w", path, err)
		}
	}
	for _, f := range []struct {
		key string
		val int
		dst *int
	}{
		{"eval_stack", fc.VM.EvalStack, &s.EvalStack},
		{"const_stack", fc.VM.ConstStack, &s.ConstStack},
		{"call_stack", fc.VM.CallStack, &s.CallStack},
	} {
		if !meta.IsDefined("vm", f.key) {
			continue
		}
		if f.val <= 0 {
			return Config{}, fmt.Errorf("%s: [vm].%s must be positive, got %d", path, f.key, f.val)
		}
		*f.dst = f.val
	}
	if meta.IsDefined("net", "connect_timeout") {
		d, err := time.ParseDuration(fc.Net.ConnectTimeout)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("%s: [net].connect_timeout: invalid duration %q", path, fc.Net.ConnectTimeout)
		}
		s.ConnectTimeout = d
	}
	if meta.IsDefined("build", "jobs") {
		if fc.Build.Jobs < 0 {
			return Config{}, fmt.Errorf("%s: [build].jobs must not be negative", path)
		}
		cfg.Jobs = fc.Build.Jobs
	}
	return cfg, nil
}

var sizeUnits = []struct {
	suffix string
	mult   int64
}{
	{"GiB", 1 << 30},
	{"MiB", 1 << 20},
	{"KiB", 1 << 10},
	{"B", 1},
}

// ParseSize parses a byte count such as "512", "64KiB" or "100MiB".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	mult := int64(1)
	for _, u := range sizeUnits {
		if num, ok := strings.CutSuffix(s, u.suffix); ok {
			s, mult = strings.TrimSpace(num), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n > (1<<63-1)/mult {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return n * mult, nil
}
