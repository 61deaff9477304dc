// File: cmd/workflow.go
package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/workflow"
)

// osExecutable locates the binary the cli backend re-invokes.
var osExecutable = os.Executable

func newWorkflowCmd(a *app) *cobra.Command {
	var (
		wf     workflow.Config
		via    string
		file   string
		binary string
		asJSON bool
	)
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Compose profile, setup, exchange and monitoring into one run",
		Long: `Runs a complete workflow: optionally saves a profile, then performs a wallet
setup or an exchange, and optionally waits for the remote run to finish.

--via cli drives this binary as a subprocess; --via mcp calls the same
operations the MCP server exposes, in process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("failed to read workflow file: %w", err)
				}
				if err := json.Unmarshal(data, &wf); err != nil {
					return fmt.Errorf("failed to parse workflow file %s: %w", file, err)
				}
			}
			if cmd.Flags().Changed("via") || wf.Via == "" {
				wf.Via = workflow.Via(via)
			}

			comps, err := a.components()
			if err != nil {
				return err
			}
			d := comps.Service.Defaults()
			if wf.Amount == 0 {
				wf.Amount = d.Amount
			}
			if wf.FromCurrency == "" {
				wf.FromCurrency = d.FromCurrency
			}
			if wf.ToCurrency == "" {
				wf.ToCurrency = d.ToCurrency
			}

			var backend workflow.Backend
			switch wf.Via {
			case workflow.ViaCLI:
				if binary == "" {
					if binary, err = osExecutable(); err != nil {
						return fmt.Errorf("failed to find executable path: %w", err)
					}
				}
				var base []string
				if a.cfgFile != "" {
					base = []string{"--config", a.cfgFile}
				}
				backend = workflow.NewCLIBackend(binary, a.logger, base...)
			default:
				backend = workflow.NewServiceBackend(comps.Service)
			}

			var prompter workflow.Prompter
			if wf.Interactive {
				prompter = workflow.TerminalPrompter{}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				out = cmd.ErrOrStderr()
			}
			outcome := workflow.NewRunner(backend, comps.Service, prompter, out, a.logger).Run(cmd.Context(), wf)

			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			if !outcome.Success {
				return errors.New("workflow failed")
			}
			return nil
		},
	}

	flags := workflowCmd.Flags()
	flags.StringVarP(&wf.Wallet, "wallet", "w", "", "Destination wallet address")
	flags.Float64VarP(&wf.Amount, "amount", "a", 0, "Amount in source currency (default from stored defaults)")
	flags.StringVarP(&wf.FromCurrency, "from-currency", "f", "", "Source currency code")
	flags.StringVarP(&wf.ToCurrency, "to-currency", "t", "", "Destination currency code")
	flags.StringVarP(&wf.Profile, "profile", "p", "", "Profile to save the wallet under, or to read it from")
	flags.BoolVar(&wf.SetupRequired, "setup", false, "Perform a wallet setup instead of an exchange")
	flags.BoolVarP(&wf.Interactive, "interactive", "i", false, "Ask for missing values")
	flags.BoolVar(&wf.Async, "async", false, "Do not wait inside the backend")
	flags.BoolVar(&wf.Monitor, "monitor", false, "Wait for the remote run to finish")
	flags.StringVar(&via, "via", string(workflow.ViaCLI), "Backend: cli or mcp")
	flags.StringVar(&file, "file", "", "JSON workflow definition (flags given explicitly still apply to via)")
	flags.StringVar(&binary, "binary", "", "swapflow binary for --via cli (default: this executable)")
	flags.BoolVar(&asJSON, "json", false, "Print the outcome as JSON")
	return workflowCmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List archived run results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			if err := comps.EnableHistory(cmd.Context()); err != nil {
				return err
			}
			if comps.History == nil {
				return errors.New("result history is not configured (set database.url or SWAPFLOW_DATABASE_URL)")
			}
			entries, err := comps.History.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No archived results.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tMODE\tSTATUS\tWALLET\tEXCHANGE\tDETAIL")
			for _, e := range entries {
				detail := e.Error
				if e.Status == schemas.ResultSuccess {
					detail = e.ExchangeURL
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Mode, statusMark(e.Status),
					schemas.MaskWallet(e.WalletAddress), e.ExchangeID, detail)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of results to show")
	return historyCmd
}
