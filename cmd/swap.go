// File: cmd/swap.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/jobs"
)

type swapOptions struct {
	wallet   string
	amount   float64
	from     string
	to       string
	profile  string
	asyncRun bool
	setup    bool
}

func newSwapCmd(a *app) *cobra.Command {
	var opts swapOptions
	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Start an exchange (or a wallet setup) as a remote run",
		Long: `Submits a run to the job service and, unless --async-run is given, waits for
its result.

Examples:
  # Save the wallet on the exchange site once
  swapflow swap --wallet 0x742d... --setup

  # Create an exchange using a saved profile
  swapflow swap --profile main --amount 40

  # Start and return immediately
  swapflow swap -w 0x742d... -a 25 --async-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSwap(cmd, a, opts)
		},
	}

	flags := swapCmd.Flags()
	flags.StringVarP(&opts.wallet, "wallet", "w", "", "Destination wallet address")
	flags.Float64VarP(&opts.amount, "amount", "a", 0, "Amount in source currency (default from config)")
	flags.StringVarP(&opts.from, "from-currency", "f", "", "Source currency code (default from config)")
	flags.StringVarP(&opts.to, "to-currency", "t", "", "Destination currency code (default from config)")
	flags.StringVarP(&opts.profile, "profile", "p", "", "Use the wallet of a saved profile")
	flags.BoolVar(&opts.asyncRun, "async-run", false, "Return after the run starts instead of waiting")
	flags.BoolVar(&opts.setup, "setup", false, "Only save the wallet address on the exchange site")
	return swapCmd
}

func runSwap(cmd *cobra.Command, a *app, opts swapOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	comps, err := a.components()
	if err != nil {
		return err
	}
	svc := comps.Service

	req, err := svc.ResolveRequest(schemas.ExchangeRequest{
		WalletAddress: opts.wallet,
		Amount:        opts.amount,
		FromCurrency:  opts.from,
		ToCurrency:    opts.to,
		SetupMode:     opts.setup,
	}, opts.profile)
	if err != nil {
		return err
	}

	var runID string
	if opts.setup {
		fmt.Fprintf(out, "Starting wallet setup for %s\n", schemas.MaskWallet(req.WalletAddress))
		runID, err = svc.SetupWallet(ctx, req.WalletAddress, "")
	} else {
		fmt.Fprintf(out, "Starting exchange: $%g %s -> %s to %s\n",
			req.Amount, req.FromCurrency, req.ToCurrency, schemas.MaskWallet(req.WalletAddress))
		runID, err = svc.Submit(ctx, req)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run ID: %s\n", runID)

	if opts.asyncRun {
		fmt.Fprintf(out, "Check progress with: swapflow status %s\n", runID)
		return nil
	}

	s := newSpinner(cmd.ErrOrStderr(), "Waiting for the run to finish...")
	s.Start()
	res := svc.Wait(ctx, runID, func(rec schemas.JobRecord) {
		s.Lock()
		s.Suffix = fmt.Sprintf(" Run %s", rec.Status)
		s.Unlock()
	})
	s.Stop()

	if !res.Success {
		a.logger.Warn("Run did not produce a result", zap.String("run_id", runID), zap.String("reason", res.Error))
		if res.Error == jobs.TimeoutReason {
			return fmt.Errorf("timed out waiting for run %s; it may still finish, check with: swapflow status %s", runID, runID)
		}
		return errors.New(res.Error)
	}
	printResult(out, *res.Result)
	return resultError(*res.Result)
}

func newStatusCmd(a *app) *cobra.Command {
	var sessionID string
	var asJSON bool
	statusCmd := &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show the status of a remote run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			report, err := comps.Service.CheckStatus(cmd.Context(), args[0], sessionID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, report)
			}
			fmt.Fprintf(out, "%s %s\n", labelMark("Run ID:"), report.RunID)
			fmt.Fprintf(out, "%s %s", labelMark("Status:"), report.Status)
			if report.RemoteStatus != "" && report.RemoteStatus != string(report.Status) {
				fmt.Fprintf(out, " (%s)", report.RemoteStatus)
			}
			fmt.Fprintln(out)
			if !report.StartedAt.IsZero() {
				fmt.Fprintf(out, "%s %s\n", labelMark("Started:"), report.StartedAt.Format("2006-01-02 15:04:05 MST"))
			}
			if report.FinishedAt != nil {
				fmt.Fprintf(out, "%s %s\n", labelMark("Finished:"), report.FinishedAt.Format("2006-01-02 15:04:05 MST"))
			}
			if report.Session != nil {
				fmt.Fprintf(out, "%s %s (%s)\n", labelMark("Session:"), report.Session.ID, report.Session.Status)
			}
			if report.Status == schemas.JobSucceeded {
				fmt.Fprintf(out, "Fetch the result with: swapflow result %s\n", report.RunID)
			}
			return nil
		},
	}
	statusCmd.Flags().StringVar(&sessionID, "session", "", "Also advance this session")
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return statusCmd
}

func newResultCmd(a *app) *cobra.Command {
	var asJSON bool
	resultCmd := &cobra.Command{
		Use:   "result RUN_ID",
		Short: "Show the result of a finished remote run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			res, err := comps.Service.Result(cmd.Context(), args[0])
			if err != nil {
				var te *jobs.TransportError
				if errors.As(err, &te) && te.StatusCode == http.StatusNotFound {
					return fmt.Errorf("no result for run %s yet", args[0])
				}
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	resultCmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return resultCmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
