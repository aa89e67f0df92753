package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gustavo/chainagent/internal/api"
	"github.com/gustavo/chainagent/internal/chain"
	"github.com/gustavo/chainagent/internal/compose"
	clierr "github.com/gustavo/chainagent/internal/errors"
	"github.com/gustavo/chainagent/internal/orchestrator"
	"github.com/gustavo/chainagent/internal/runstore"
)

func (s *runtimeState) newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run \"<instruction>\"",
		Short: "Execute one plain-language instruction",
		Example: `  chainagent run "send 0.1 MNT to 0x1234...abcd"
  chainagent run "deposit 100 USDC into Lendle"
  chainagent run "swap 50 USDT for WETH"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(args[0])
			if text == "" {
				return clierr.New(clierr.CodeUsage, "instruction text is empty")
			}

			p, err := buildPipeline(cmd.Context(), s.settings)
			if err != nil {
				return err
			}
			defer p.Close()

			var notifier orchestrator.Notifier
			if s.settings.OutputMode != "json" {
				// Progress goes to stderr so stdout stays a clean answer.
				notifier = orchestrator.NotifierFunc(func(n orchestrator.Notification) {
					if !n.Terminal {
						fmt.Fprintf(s.runner.stderr, "  [%s] %s\n", n.Stage, n.Message)
					}
				})
			}

			outcome, execErr := p.orch.Execute(cmd.Context(), text, notifier)
			if err := s.renderOutcome(outcome); err != nil {
				return err
			}
			return execErr
		},
	}
}

func (s *runtimeState) renderOutcome(outcome compose.Outcome) error {
	if s.settings.OutputMode == "json" {
		enc := json.NewEncoder(s.runner.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return clierr.Wrap(clierr.CodeInternal, "encode outcome", err)
		}
		return nil
	}
	fmt.Fprintln(s.runner.stdout, outcome.Message)
	return nil
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the action pipeline over HTTP and websocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listenAddr != "" {
				s.settings.ListenAddr = listenAddr
			}
			p, err := buildPipeline(cmd.Context(), s.settings)
			if err != nil {
				return err
			}
			defer p.Close()

			server := api.NewServer(s.settings.ListenAddr, p.orch, p.store, api.Limits{})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "serve", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "shutdown", err)
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (host:port)")
	return cmd
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect past action runs",
	}
	cmd.AddCommand(s.newActionsListCommand())
	cmd.AddCommand(s.newActionsShowCommand())
	return cmd
}

func (s *runtimeState) newActionsListCommand() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(s.settings)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(status, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list runs", err)
			}
			if s.settings.OutputMode == "json" {
				enc := json.NewEncoder(s.runner.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"runs": runs})
			}
			if len(runs) == 0 {
				fmt.Fprintln(s.runner.stdout, "no runs recorded")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(s.runner.stdout, "%s  %-8s  %-8s  %s\n", run.RunID, run.Kind, run.Status, run.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (running, reported, failed, timed_out)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

func (s *runtimeState) newActionsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(s.settings)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(args[0])
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, err.Error(), err)
			}
			if s.settings.OutputMode == "json" {
				enc := json.NewEncoder(s.runner.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			printRun(s, run)
			return nil
		},
	}
}

func printRun(s *runtimeState, run runstore.Run) {
	fmt.Fprintf(s.runner.stdout, "run:     %s\n", run.RunID)
	fmt.Fprintf(s.runner.stdout, "kind:    %s\n", run.Kind)
	fmt.Fprintf(s.runner.stdout, "status:  %s (stage %s)\n", run.Status, run.Stage)
	fmt.Fprintf(s.runner.stdout, "chain:   %d\n", run.ChainID)
	if run.Address != "" {
		if chainCtx, err := chain.Resolve(strconv.FormatInt(run.ChainID, 10)); err == nil {
			fmt.Fprintf(s.runner.stdout, "address: %s  %s\n", run.Address, chainCtx.AddressURL(run.Address))
		} else {
			fmt.Fprintf(s.runner.stdout, "address: %s\n", run.Address)
		}
	}
	fmt.Fprintf(s.runner.stdout, "text:    %s\n", run.Text)
	for _, tx := range run.TxRecords {
		fmt.Fprintf(s.runner.stdout, "tx:      %s  nonce=%d  %s\n", tx.Hash, tx.Nonce, tx.Status)
	}
	if run.Outcome != nil {
		fmt.Fprintf(s.runner.stdout, "outcome: %s\n", run.Outcome.Message)
	}
}
