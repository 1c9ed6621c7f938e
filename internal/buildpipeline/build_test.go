package buildpipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"novus/internal/backend"
	"novus/internal/buildpipeline"
	"novus/internal/prog"
	"novus/internal/vm"
)

func writeProgram(t *testing.T, path, text string) {
	t.Helper()
	p := prog.New()
	line := p.DeclareFunc("writeLine", prog.FuncActionConWriteStringLine, []prog.TypeID{prog.TypeString}, prog.TypeString)
	p.AddExec(prog.ConstTable{}, p.Call(line, &prog.LitStringExpr{Val: text}))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := prog.Encode(f, p); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestBuildWritesRunnableAssembly(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello"+buildpipeline.ProgramExt)
	writeProgram(t, src, "hello")
	out := filepath.Join(dir, "out")

	var rec buildpipeline.Recorder
	results, err := buildpipeline.Build(context.Background(), buildpipeline.Request{
		Files:    []string{src},
		OutDir:   out,
		Progress: &rec,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := filepath.Join(out, "hello"+buildpipeline.AssemblyExt)
	if len(results) != 1 || results[0].Output != want {
		t.Fatalf("expected output %q, got %+v", want, results)
	}
	if results[0].Timings.Total() <= 0 {
		t.Fatal("expected recorded timings")
	}

	asm, err := buildpipeline.ReadAssembly(context.Background(), want, backend.Options{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	plat := vm.NewMemoryPlatform("")
	state, err := vm.Run(context.Background(), asm, plat)
	if err != nil || state != vm.StateSuccess {
		t.Fatalf("expected success, got %v (%v)", state, err)
	}
	if got := plat.Output(); got != "hello\n" {
		t.Fatalf("expected hello, got %q", got)
	}

	var done []buildpipeline.Stage
	for _, ev := range rec.Events() {
		if ev.Status == buildpipeline.StatusDone {
			done = append(done, ev.Stage)
		}
	}
	if len(done) != len(buildpipeline.Stages) {
		t.Fatalf("expected every stage done, got %v", done)
	}
	for i, st := range buildpipeline.Stages {
		if done[i] != st {
			t.Fatalf("expected stage %s at %d, got %s", st, i, done[i])
		}
	}
}

func TestBuildKeepsGoingPastBrokenFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good"+buildpipeline.ProgramExt)
	bad := filepath.Join(dir, "bad"+buildpipeline.ProgramExt)
	writeProgram(t, good, "ok")
	if err := os.WriteFile(bad, []byte("not a program"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var rec buildpipeline.Recorder
	results, err := buildpipeline.Build(context.Background(), buildpipeline.Request{
		Files:    []string{bad, good},
		Jobs:     1,
		Progress: &rec,
	})
	if err == nil || !strings.Contains(err.Error(), "bad.nvp") {
		t.Fatalf("expected error naming bad.nvp, got %v", err)
	}
	if results[0].Err == nil || results[1].Err != nil {
		t.Fatalf("expected only the first file to fail, got %+v", results)
	}
	if _, err := os.Stat(results[1].Output); err != nil {
		t.Fatalf("expected good output, got %v", err)
	}
	if _, err := os.Stat(results[0].Output); !os.IsNotExist(err) {
		t.Fatalf("expected no output for the broken file, got %v", err)
	}

	var failed bool
	for _, ev := range rec.Events() {
		if ev.File == bad && ev.Status == buildpipeline.StatusError {
			failed = ev.Stage == buildpipeline.StageLoad
		}
	}
	if !failed {
		t.Fatal("expected a load error event for the broken file")
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a"+buildpipeline.ProgramExt)
	writeProgram(t, src, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := buildpipeline.Build(ctx, buildpipeline.Request{Files: []string{src}})
	if err == nil || results[0].Err != context.Canceled {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestExpandFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "lib")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"b.nvp", "a.nvp", "lib/c.nvp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := buildpipeline.ExpandFiles([]string{dir, filepath.Join(dir, "a.nvp")})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.nvp"),
		filepath.Join(dir, "b.nvp"),
		filepath.Join(dir, "lib", "c.nvp"),
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if _, err := buildpipeline.ExpandFiles([]string{nested + "/none"}); err == nil {
		t.Fatal("expected error for a missing path")
	}
}

func TestOutputPath(t *testing.T) {
	if got := buildpipeline.OutputPath("src/main.nvp", ""); got != "src/main.nva" {
		t.Fatalf("expected src/main.nva, got %q", got)
	}
	if got := buildpipeline.OutputPath("src/main.nvp", "bin"); got != filepath.Join("bin", "main.nva") {
		t.Fatalf("expected bin/main.nva, got %q", got)
	}
}
