package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"novus/internal/backend"
	"novus/internal/buildpipeline"
	"novus/internal/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <file.nva|file.nvp> [program args...]",
	Short: "Execute an assembly or program file",
	Long: `Execute an assembly on the VM. Program files (.nvp) are compiled in memory first.
Arguments after the file are passed to the program.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExecution,
}

func init() {
	runCmd.Flags().SetInterspersed(false)
	runCmd.Flags().Bool("vm-trace", false, "print every executed instruction and heap event to stderr")
	addVMFlags(runCmd.Flags())
	addJobsFlag(runCmd.Flags())
}

func runExecution(cmd *cobra.Command, args []string) error {
	vmTrace, err := cmd.Flags().GetBool("vm-trace")
	if err != nil {
		return fmt.Errorf("failed to get vm-trace flag: %w", err)
	}
	return withSession(cmd, func(s *session) error {
		start := time.Now()
		asm, err := buildpipeline.ReadAssembly(s.ctx, args[0], backend.Options{Jobs: s.cfg.Jobs})
		if err != nil {
			return err
		}
		loaded := time.Since(start)

		plat := vm.NewOSPlatform(args)
		defer func() {
			if err := plat.RestoreTerminal(); err != nil {
				fmt.Fprintf(os.Stderr, "terminal: %v\n", err)
			}
		}()
		opts := []vm.Option{vm.WithSettings(s.cfg.VM), vm.WithTracer(s.tracer)}
		if vmTrace {
			opts = append(opts, vm.WithInstrTrace(os.Stderr))
		}

		start = time.Now()
		state, runErr := vm.New(asm, plat, opts...).Run(s.ctx)
		ran := time.Since(start)
		if s.timings {
			fmt.Fprintf(cmd.ErrOrStderr(), "loaded %.1f ms\nran %.1f ms\n", toMillis(loaded), toMillis(ran))
		}
		if runErr != nil {
			if vmErr, ok := vm.AsVMError(runErr); ok {
				fmt.Fprintf(os.Stderr, "vm panic: %v\n", vmErr)
				return exitError{code: 1}
			}
			return runErr
		}
		if state != vm.StateSuccess {
			if !s.quiet {
				fmt.Fprintf(os.Stderr, "program finished with state %s\n", state)
			}
			return exitError{code: 1}
		}
		return nil
	})
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
