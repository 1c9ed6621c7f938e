package main

import (
	"bufio"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"novus/internal/backend"
	"novus/internal/buildpipeline"
	"novus/internal/novasm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file.nva|file.nvp>",
	Short: "Print an assembly listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(s *session) error {
			asm, err := buildpipeline.ReadAssembly(s.ctx, args[0], backend.Options{Jobs: s.cfg.Jobs})
			if err != nil {
				return err
			}
			out := bufio.NewWriter(cmd.OutOrStdout())
			err = novasm.WriteText(out, asm, novasm.TextOptions{Color: !color.NoColor})
			if flushErr := out.Flush(); err == nil {
				err = flushErr
			}
			return err
		})
	},
}
