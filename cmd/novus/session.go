package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"novus/internal/config"
	"novus/internal/prof"
	"novus/internal/trace"
)

// session holds what every command sets up before doing its work.
type session struct {
	ctx     context.Context
	cfg     config.Config
	tracer  trace.Tracer
	quiet   bool
	timings bool
}

// withSession prepares tracing, profiling, configuration and interrupt
// handling, runs fn under a driver span named after the command, and tears
// everything down again.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	pf := cmd.Root().PersistentFlags()
	quiet, err := pf.GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	timings, err := pf.GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	profOpts, err := profileOptions(cmd)
	if err != nil {
		return err
	}
	profiler, err := prof.Start(profOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
	}()

	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	span, ctx := trace.Start(ctx, trace.ScopeDriver, cmd.Name())
	if cfg.Path != "" {
		span.WithExtra("config", cfg.Path)
	}
	err = fn(&session{ctx: ctx, cfg: cfg, tracer: tracer, quiet: quiet, timings: timings})
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	span.End(detail)
	return err
}

func profileOptions(cmd *cobra.Command) (prof.Options, error) {
	pf := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPU, err = pf.GetString("cpu-profile"); err != nil {
		return opts, fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.Mem, err = pf.GetString("mem-profile"); err != nil {
		return opts, fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.Trace, err = pf.GetString("runtime-trace"); err != nil {
		return opts, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	return opts, nil
}
