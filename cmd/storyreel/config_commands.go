package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"storyreel/internal/config"
)

const redacted = "********"

// standalone marks commands that load (or create) configuration themselves.
var standalone = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the storyreel configuration",
	}
	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigValidateCommand(ctx),
		newConfigShowCommand(ctx),
	)
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		dest      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: standalone,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := initTarget(dest)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				if statErr == nil {
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				}
				if !errors.Is(statErr, fs.ErrNotExist) {
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set generation.api_key_id (or export STORYREEL_API_KEY_ID) before submitting generation tasks.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "path", "o", "", "Where to write the file (default ~/.config/storyreel/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func initTarget(dest string) (string, error) {
	if dest = strings.TrimSpace(dest); dest == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(dest)
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and report the effective settings",
		Annotations: standalone,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(ctx.configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			source := path
			if !exists {
				source = path + " (not found, using defaults)"
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable(
				[]column{{title: "Setting"}, {title: "Value", maxWidth: 60}},
				[][]string{
					{"config", source},
					{"backend", cfg.Backend.BaseURL},
					{"token", yesNo(cfg.Backend.APIToken != "")},
					{"poll interval", cfg.PollInterval().String()},
					{"max attempts", strconv.Itoa(cfg.Poller.MaxAttempts) + " / video " + strconv.Itoa(cfg.Poller.VideoMaxAttempts)},
					{"duplicate policy", cfg.Workflow.DuplicatePolicy},
					{"ledger", cfg.LedgerPath()},
				},
			))
			fmt.Fprintln(out)
			if err := cfg.RequireGeneration(); err != nil {
				fmt.Fprintf(out, "Warning: %v\n", err)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			shown := *cfg
			if shown.Backend.APIToken != "" {
				shown.Backend.APIToken = redacted
			}
			if ctx.jsonFlag {
				return writeJSON(cmd, shown)
			}
			data, err := toml.Marshal(shown)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# ledger: %s\n# locks: %s\n", cfg.LedgerPath(), filepath.Dir(cfg.LockPath("")))
			_, err = out.Write(data)
			return err
		},
	}
}
