// Package buildpipeline compiles program files into assembly files.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"novus/internal/backend"
	"novus/internal/novasm"
	"novus/internal/prog"
	"novus/internal/trace"
)

const (
	// ProgramExt is the extension of encoded program files.
	ProgramExt = ".nvp"
	// AssemblyExt is the extension of assembly files written by Build.
	AssemblyExt = ".nva"
)

// Request configures a multi-file build.
type Request struct {
	Files    []string
	OutDir   string // empty writes next to each input
	Jobs     int    // files built concurrently; 0 means GOMAXPROCS
	Gen      backend.Options
	Progress ProgressSink
}

// Result describes the outcome for one input file.
type Result struct {
	File    string
	Output  string
	Timings Timings
	Err     error
}

// OutputPath returns where the assembly for file is written.
func OutputPath(file, outDir string) string {
	base := strings.TrimSuffix(file, filepath.Ext(file)) + AssemblyExt
	if outDir == "" {
		return base
	}
	return filepath.Join(outDir, filepath.Base(base))
}

// Load decodes the program file at path.
func Load(path string) (*prog.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := prog.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Compile loads a program file and generates its assembly without writing it.
func Compile(ctx context.Context, path string, opts backend.Options) (*novasm.Assembly, error) {
	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	asm, err := backend.Generate(ctx, p, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return asm, nil
}

// ReadAssembly loads path, compiling it first when it is a program file.
func ReadAssembly(ctx context.Context, path string, opts backend.Options) (*novasm.Assembly, error) {
	if filepath.Ext(path) == ProgramExt {
		return Compile(ctx, path, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	asm, err := novasm.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return asm, nil
}

// Build compiles every requested file. A failing file does not stop the
// others; the returned error joins every per-file error.
func Build(ctx context.Context, req Request) ([]Result, error) {
	span, ctx := trace.Start(ctx, trace.ScopePhase, "build")
	defer span.End("")

	if req.OutDir != "" {
		if err := os.MkdirAll(req.OutDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	for _, file := range req.Files {
		emit(req.Progress, file, StageLoad, StatusQueued, nil, 0)
	}

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]Result, len(req.Files))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, file := range req.Files {
		g.Go(func() error {
			results[i] = buildFile(ctx, file, &req)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	span.WithExtra("files", fmt.Sprint(len(req.Files)))
	return results, errors.Join(errs...)
}

func buildFile(ctx context.Context, file string, req *Request) Result {
	res := Result{File: file, Output: OutputPath(file, req.OutDir)}
	span, ctx := trace.Start(ctx, trace.ScopeUnit, "file")
	span.WithExtra("file", file)
	defer func() {
		detail := ""
		if res.Err != nil {
			detail = res.Err.Error()
		}
		span.End(detail)
	}()

	var p *prog.Program
	var asm *novasm.Assembly
	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageLoad, func() (err error) {
			p, err = Load(file)
			return err
		}},
		{StageGenerate, func() (err error) {
			asm, err = backend.Generate(ctx, p, req.Gen)
			if err != nil {
				err = fmt.Errorf("%s: %w", file, err)
			}
			return err
		}},
		{StageWrite, func() error {
			return writeAssembly(res.Output, asm)
		}},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			res.Err = err
			emit(req.Progress, file, step.stage, StatusError, err, 0)
			return res
		}
		start := time.Now()
		emit(req.Progress, file, step.stage, StatusWorking, nil, 0)
		err := step.run()
		elapsed := time.Since(start)
		res.Timings.Set(step.stage, elapsed)
		if err != nil {
			res.Err = err
			emit(req.Progress, file, step.stage, StatusError, err, elapsed)
			return res
		}
		emit(req.Progress, file, step.stage, StatusDone, nil, elapsed)
	}
	return res
}

// writeAssembly replaces path atomically.
func writeAssembly(path string, asm *novasm.Assembly) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".novasm-*")
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := novasm.Save(tmp, asm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}

func emit(sink ProgressSink, file string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{File: file, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}
