package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"novus/internal/config"
	"novus/internal/prog"
)

func TestApplyOverrides(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addVMFlags(fs)
	addJobsFlag(fs)
	if err := fs.Parse([]string{"--gc-interval", "8MiB", "--call-stack=64", "-j", "2", "--connect-timeout", "1s"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := config.Default()
	cfg.VM.EvalStack = 7 // from a settings file
	if err := applyOverrides(fs, &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.VM.GCInterval != 8<<20 || cfg.VM.CallStack != 64 || cfg.Jobs != 2 || cfg.VM.ConnectTimeout != time.Second {
		t.Fatalf("expected flag values, got %+v jobs=%d", cfg.VM, cfg.Jobs)
	}
	if cfg.VM.EvalStack != 7 {
		t.Fatalf("expected unset flag to keep the file value, got %d", cfg.VM.EvalStack)
	}
}

func TestApplyOverridesRejectsBadValues(t *testing.T) {
	for _, args := range [][]string{
		{"--heap-limit", "huge"},
		{"--eval-stack", "0"},
		{"--jobs", "-1"},
	} {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		addVMFlags(fs)
		addJobsFlag(fs)
		if err := fs.Parse(args); err != nil {
			t.Fatalf("parse %v: %v", args, err)
		}
		cfg := config.Default()
		if err := applyOverrides(fs, &cfg); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestProgressViewWanted(t *testing.T) {
	if on, err := progressViewWanted("on"); err != nil || !on {
		t.Fatalf("expected on, got %v %v", on, err)
	}
	if on, err := progressViewWanted("off"); err != nil || on {
		t.Fatalf("expected off, got %v %v", on, err)
	}
	if _, err := progressViewWanted("sometimes"); err == nil {
		t.Fatal("expected error for an unknown mode")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBuildThenDisasm(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(cfgPath, []byte("[build]\njobs = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	src := filepath.Join(dir, "hello.nvp")
	p := prog.New()
	line := p.DeclareFunc("writeLine", prog.FuncActionConWriteStringLine, []prog.TypeID{prog.TypeString}, prog.TypeString)
	p.AddExec(prog.ConstTable{}, p.Call(line, &prog.LitStringExpr{Val: "hi"}))
	f, err := os.Create(src)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := prog.Encode(f, p); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	out, err := execute(t, "--color", "off", "--config", cfgPath, "build", "--ui", "off", dir)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	asmPath := filepath.Join(dir, "hello.nva")
	if !strings.Contains(out, "built "+src+" -> "+asmPath) {
		t.Fatalf("expected build report, got %q", out)
	}

	out, err = execute(t, "--color", "off", "--config", cfgPath, "disasm", asmPath)
	if err != nil {
		t.Fatalf("disasm: %v", err)
	}
	for _, want := range []string{"entry.0:", `load-lit-string "hi"`, "pcall con-write-string-line", "ret"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in listing:\n%s", want, out)
		}
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, `"tool": "novus"`) || !strings.Contains(out, `"assembly_schema": 1`) {
		t.Fatalf("unexpected payload: %s", out)
	}
	if _, err := execute(t, "version", "--format", "yaml"); err == nil {
		t.Fatal("expected error for an unknown format")
	}
}
