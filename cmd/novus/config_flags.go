package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"novus/internal/config"
)

// loadConfig reads --config or the nearest novus.toml, then applies any
// command flags that override file values.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			cwd = "."
		}
		cfg, err = config.Discover(cwd)
	}
	if err != nil {
		return config.Config{}, err
	}
	if err := applyOverrides(cmd.Flags(), &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func addVMFlags(fs *pflag.FlagSet) {
	def := config.Default().VM
	fs.String("gc-interval", "", "bytes allocated between collections, e.g. 64MiB (default from config)")
	fs.String("heap-limit", "", "live heap cap, 0 for unlimited (default from config)")
	fs.Int("eval-stack", def.EvalStack, "evaluation stack slots per executor")
	fs.Int("const-stack", def.ConstStack, "const slots per executor")
	fs.Int("call-stack", def.CallStack, "call frames per executor")
	fs.Duration("connect-timeout", def.ConnectTimeout, "TCP connect timeout")
}

func addJobsFlag(fs *pflag.FlagSet) {
	fs.IntP("jobs", "j", 0, "parallel workers, 0 for GOMAXPROCS (default from config)")
}

func applyOverrides(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	for _, name := range []string{"gc-interval", "heap-limit"} {
		if !fs.Changed(name) {
			continue
		}
		raw, _ := fs.GetString(name)
		n, perr := config.ParseSize(raw)
		if perr != nil {
			return fmt.Errorf("--%s: %w", name, perr)
		}
		if name == "gc-interval" {
			cfg.VM.GCInterval = n
		} else {
			cfg.VM.HeapLimit = n
		}
	}
	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"eval-stack", &cfg.VM.EvalStack},
		{"const-stack", &cfg.VM.ConstStack},
		{"call-stack", &cfg.VM.CallStack},
	} {
		if !fs.Changed(f.name) {
			continue
		}
		if *f.dst, err = fs.GetInt(f.name); err != nil {
			return err
		}
		if *f.dst <= 0 {
			return fmt.Errorf("--%s must be positive", f.name)
		}
	}
	if fs.Changed("connect-timeout") {
		if cfg.VM.ConnectTimeout, err = fs.GetDuration("connect-timeout"); err != nil {
			return err
		}
	}
	if fs.Changed("jobs") {
		if cfg.Jobs, err = fs.GetInt("jobs"); err != nil {
			return err
		}
		if cfg.Jobs < 0 {
			return fmt.Errorf("--jobs must not be negative")
		}
	}
	return nil
}
