package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"novus/internal/backend"
	"novus/internal/buildpipeline"
	"novus/internal/ui"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] <file.nvp|dir>...",
	Short: "Compile program files into assembly files",
	Long:  `Compile every program file (directories are searched for .nvp files) into a .nva assembly next to it or under --out-dir`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringP("out-dir", "o", "", "directory for assembly files (default: next to each input)")
	buildCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
	addJobsFlag(buildCmd.Flags())
}

func runBuild(cmd *cobra.Command, args []string) error {
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return fmt.Errorf("failed to get out-dir flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	useUI, err := progressViewWanted(uiValue)
	if err != nil {
		return err
	}
	files, err := buildpipeline.ExpandFiles(args)
	if err != nil {
		return err
	}

	return withSession(cmd, func(s *session) error {
		req := buildpipeline.Request{
			Files:  files,
			OutDir: outDir,
			Jobs:   s.cfg.Jobs,
			Gen:    backend.Options{Jobs: s.cfg.Jobs},
		}
		var results []buildpipeline.Result
		if !s.quiet && useUI {
			results, err = runBuildWithUI(s.ctx, "build", req)
		} else {
			results, err = buildpipeline.Build(s.ctx, req)
			if !s.quiet {
				printResults(cmd.OutOrStdout(), results)
			}
		}
		if s.timings {
			printTimings(cmd.ErrOrStderr(), results)
		}
		return err
	})
}

func printResults(out io.Writer, results []buildpipeline.Result) {
	ok := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed, color.Bold)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s %s\n", bad.Sprint("failed"), r.File)
			continue
		}
		fmt.Fprintf(out, "%s %s -> %s\n", ok.Sprint("built"), r.File, r.Output)
	}
}

func printTimings(out io.Writer, results []buildpipeline.Result) {
	for _, r := range results {
		fmt.Fprintf(out, "%s:", r.File)
		for _, st := range buildpipeline.Stages {
			fmt.Fprintf(out, " %s %.1f ms", st, toMillis(r.Timings.Duration(st)))
		}
		fmt.Fprintln(out)
	}
}

// progressViewWanted resolves --ui; auto shows the view on a terminal.
func progressViewWanted(value string) (bool, error) {
	switch value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "", "auto":
		return isTerminal(os.Stdout), nil
	}
	return false, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

type buildOutcome struct {
	results []buildpipeline.Result
	err     error
}

func runBuildWithUI(ctx context.Context, title string, req buildpipeline.Request) ([]buildpipeline.Result, error) {
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)
	go func() {
		req.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := buildpipeline.Build(ctx, req)
		close(events)
		outcomeCh <- buildOutcome{results: res, err: err}
	}()
	uiErr := ui.Run(title, req.Files, events, os.Stdout)
	if uiErr != nil {
		// Keep draining so Build never blocks on a full channel.
		for range events {
		}
	}
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.results, uiErr
	}
	return outcome.results, outcome.err
}
