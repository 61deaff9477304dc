// File: cmd/serve.go
package cmd

import (
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/mcp"
	"github.com/xkilldash9x/swapflow/internal/orchestrator"
)

func newDocsCmd() *cobra.Command {
	var api bool
	docsCmd := &cobra.Command{
		Use:   "docs",
		Short: "Print the setup guide (or the MCP reference with --api)",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			if api {
				fmt.Fprint(cmd.OutOrStdout(), mcp.APIReference)
				return
			}
			fmt.Fprint(cmd.OutOrStdout(), mcp.SetupGuide)
		},
	}
	docsCmd.Flags().BoolVar(&api, "api", false, "Print the MCP tool and resource reference")
	return docsCmd
}

type runOptions struct {
	input  string
	output string
	req    schemas.ExchangeRequest
}

// newRunCmd is the entrypoint of a job process: it drives the browser locally
// and writes the result record.
func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the browser automation locally and write the result",
		Long: `Runs one setup or exchange in a local browser. The request comes from flags or
from an --input JSON file with the job payload keys (wallet_address, amount,
from_currency, to_currency, setup_mode). The result is written as JSON to
--output, or stdout when it is "-".`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{stderrLogs: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			req := opts.req
			if opts.input != "" {
				data, err := os.ReadFile(opts.input)
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				if err := json.Unmarshal(data, &req); err != nil {
					return fmt.Errorf("failed to parse input %s: %w", opts.input, err)
				}
			}
			req = req.WithDefaults()

			comps, err := a.components()
			if err != nil {
				return err
			}
			if err := comps.EnableHistory(cmd.Context()); err != nil {
				a.logger.Warn("Continuing without result history", zap.Error(err))
			}

			var sink orchestrator.ResultSink = orchestrator.NewWriterSink(cmd.OutOrStdout())
			if opts.output != "-" {
				sink = orchestrator.FileSink{Path: opts.output}
			}
			runner, err := comps.NewRunner(sink)
			if err != nil {
				return err
			}
			res := runner.Run(cmd.Context(), req)
			if opts.output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Result (%s) written to %s\n", res.Status, opts.output)
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&opts.input, "input", "", "JSON file with the request")
	flags.StringVarP(&opts.output, "output", "o", "-", "Result file, or - for stdout")
	flags.StringVarP(&opts.req.WalletAddress, "wallet", "w", "", "Destination wallet address")
	flags.Float64VarP(&opts.req.Amount, "amount", "a", 0, "Amount in source currency")
	flags.StringVarP(&opts.req.FromCurrency, "from-currency", "f", "", "Source currency code")
	flags.StringVarP(&opts.req.ToCurrency, "to-currency", "t", "", "Destination currency code")
	flags.BoolVar(&opts.req.SetupMode, "setup", false, "Only save the wallet address on the exchange site")
	return runCmd
}

func newMCPCmd(a *app) *cobra.Command {
	var useHTTP bool
	var listen string
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tool surface over stdio (or HTTP with --http)",
		Long: `Starts the Model Context Protocol server. By default it speaks newline-delimited
JSON-RPC on stdin/stdout and logs to stderr. With --http it serves POST /mcp,
a WebSocket at /mcp/ws, /healthz and Prometheus metrics at /metrics.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{stderrLogs: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(comps.Service, a.cfg, a.logger, mcp.WithVersion(Version))
			if err != nil {
				return err
			}
			if useHTTP {
				addr := listen
				if addr == "" {
					addr = a.cfg.MCP().ListenAddr
				}
				return srv.ListenAndServe(cmd.Context(), addr)
			}
			return srv.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	mcpCmd.Flags().BoolVar(&useHTTP, "http", false, "Serve over HTTP and WebSocket instead of stdio")
	mcpCmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default mcp.listen_addr)")
	return mcpCmd
}
