package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

var (
	successMark = color.New(color.FgGreen, color.Bold).SprintFunc()
	failedMark  = color.New(color.FgYellow, color.Bold).SprintFunc()
	errorMark   = color.New(color.FgRed, color.Bold).SprintFunc()
	labelMark   = color.New(color.FgCyan).SprintFunc()
)

// statusMark colors a result status: failed is a business outcome (yellow),
// error an exceptional one (red).
func statusMark(status schemas.ResultStatus) string {
	switch status {
	case schemas.ResultSuccess:
		return successMark(string(status))
	case schemas.ResultFailed:
		return failedMark(string(status))
	default:
		return errorMark(string(status))
	}
}

func printResult(w io.Writer, res schemas.AutomationResult) {
	fmt.Fprintf(w, "%s %s\n", labelMark("Status:"), statusMark(res.Status))
	fmt.Fprintf(w, "%s %s\n", labelMark("Mode:  "), res.Mode)
	fmt.Fprintf(w, "%s %s\n", labelMark("Wallet:"), schemas.MaskWallet(res.WalletAddress))
	if res.Mode != schemas.ModeSetup {
		fmt.Fprintf(w, "%s $%g %s -> %s\n", labelMark("Amount:"), res.Amount, res.FromCurrency, res.ToCurrency)
	}
	if res.ExchangeID != "" {
		fmt.Fprintf(w, "%s %s\n", labelMark("Exchange ID: "), res.ExchangeID)
		fmt.Fprintf(w, "%s %s\n", labelMark("Exchange URL:"), res.ExchangeURL)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "%s %s\n", labelMark("Reason:"), res.Error)
	}
	if res.FinalState != "" {
		fmt.Fprintf(w, "%s %s\n", labelMark("Final state:"), res.FinalState)
	}
	if res.CurrentURL != "" {
		fmt.Fprintf(w, "%s %s\n", labelMark("Last URL:"), res.CurrentURL)
	}
	if d := res.Diagnostics; d != nil {
		if d.ScreenshotPath != "" {
			fmt.Fprintf(w, "%s %s\n", labelMark("Screenshot:"), d.ScreenshotPath)
		}
		if d.HTMLPath != "" {
			fmt.Fprintf(w, "%s %s\n", labelMark("Page HTML:"), d.HTMLPath)
		}
	}
}

// resultError turns a non-success result into a command error so the process
// exits non-zero.
func resultError(res schemas.AutomationResult) error {
	if res.Status == schemas.ResultSuccess {
		return nil
	}
	if res.Error != "" {
		return fmt.Errorf("run %s: %s", res.Status, res.Error)
	}
	return fmt.Errorf("run %s", res.Status)
}

// newSpinner writes to w; it only animates on a terminal.
func newSpinner(w io.Writer, suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	return s
}
