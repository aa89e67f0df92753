package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gustavo/chainagent/internal/config"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/version"
	"github.com/gustavo/chainagent/pkg/logger"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	if err == nil {
		return 0
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Conversational on-chain transaction agent",
		Long:  "chainagent turns plain-language instructions into validated, confirmed on-chain transactions.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			if err := logger.Init(logger.Config{
				Level:       settings.LogLevel,
				Format:      settings.LogFormat,
				OutputPaths: []string{"stderr"},
			}); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "initialize logging", err)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&s.flags.ConfigPath, "config", "", "path to the config file")
	flags.StringVar(&s.flags.Chain, "chain", "", "target chain (slug or numeric id)")
	flags.StringVar(&s.flags.RPCURL, "rpc-url", "", "JSON-RPC endpoint override")
	flags.BoolVar(&s.flags.JSON, "json", false, "emit machine-readable JSON output")
	flags.StringVar(&s.flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&s.flags.LogFormat, "log-format", "", "log format (text, json)")
	flags.StringVar(&s.flags.ConfirmTimeout, "confirm-timeout", "", "how long to wait for confirmation (e.g. 2m)")
	flags.StringVar(&s.flags.PollInterval, "poll-interval", "", "receipt polling interval (e.g. 2s)")
	flags.Float64Var(&s.flags.MinHealthFactor, "min-health-factor", 0, "refuse borrows that would drop the health factor below this")
	flags.Int64Var(&s.flags.SlippageBps, "slippage-bps", 0, "swap slippage tolerance in basis points")
	flags.Float64Var(&s.flags.GasMultiplier, "gas-multiplier", 0, "pad gas estimates by this factor")
	flags.StringVar(&s.flags.MaxFeeGwei, "max-fee-gwei", "", "cap the total fee in gwei")
	flags.StringVar(&s.flags.MaxPriorityFeeGwei, "max-priority-fee-gwei", "", "cap the priority fee in gwei")
	flags.StringVar(&s.flags.StorePath, "store-path", "", "run store sqlite path")
	flags.StringVar(&s.flags.StoreLockPath, "store-lock-path", "", "run store lock file path")

	cmd.AddCommand(s.newRunCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newVersionCommand())
	return cmd
}

func (s *runtimeState) renderError(err error) {
	if typed, ok := clierr.As(err); ok {
		fmt.Fprintf(s.runner.stderr, "error: %s (%s)\n", typed.Message, clierr.Kind(typed.Code))
		return
	}
	fmt.Fprintf(s.runner.stderr, "error: %v\n", err)
}

func (s *runtimeState) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Long())
			return nil
		},
	}
}

// normalizeRunError maps cobra's own errors onto the usage code so exit
// statuses stay stable.
func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	var typed *clierr.Error
	if errors.As(err, &typed) {
		return err
	}
	return clierr.Wrap(clierr.CodeUsage, err.Error(), err)
}
