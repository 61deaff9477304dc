// File: cmd/profiles.go
package cmd

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

func newProfilesCmd(a *app) *cobra.Command {
	profilesCmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Short:   "Manage saved wallet profiles",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			profiles := comps.Service.Profiles()
			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				fmt.Fprintln(out, "No saved profiles. Add one with: swapflow profiles add NAME WALLET")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tWALLET")
			for _, p := range profiles {
				fmt.Fprintf(tw, "%s\t%s\n", p.Name, schemas.MaskWallet(p.WalletAddress))
			}
			return tw.Flush()
		},
	}

	addCmd := &cobra.Command{
		Use:   "add NAME WALLET",
		Short: "Save a wallet under a profile name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, wallet := args[0], strings.TrimSpace(args[1])
			if err := (schemas.ExchangeRequest{WalletAddress: wallet}).WithDefaults().Validate(); err != nil {
				return err
			}
			comps, err := a.components()
			if err != nil {
				return err
			}
			if err := comps.Service.SaveProfile(name, wallet); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !common.IsHexAddress(wallet) {
				fmt.Fprintf(out, "%s %s is not a 20-byte hex address; saved anyway\n", failedMark("!"), schemas.MaskWallet(wallet))
			}
			fmt.Fprintf(out, "%s Profile '%s' saved\n", successMark("v"), name)
			return nil
		},
	}

	var yes bool
	removeCmd := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm", "delete"},
		Short:   "Delete a saved profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			comps, err := a.components()
			if err != nil {
				return err
			}
			wallet, err := comps.Service.Profile(name)
			if err != nil {
				return fmt.Errorf("profile '%s' not found", name)
			}
			out := cmd.OutOrStdout()
			if !yes && !confirm(cmd, fmt.Sprintf("Delete profile '%s' (%s)?", name, schemas.MaskWallet(wallet))) {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
			if err := comps.Service.DeleteProfile(name); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Profile '%s' deleted\n", successMark("v"), name)
			return nil
		},
	}
	removeCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	profilesCmd.AddCommand(listCmd, addCmd, removeCmd)
	return profilesCmd
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	reader := bufio.NewReader(cmd.InOrStdin())
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
