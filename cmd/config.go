// File: cmd/config.go
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/config"
)

// defaultKeys are the keys accepted by "config set".
var defaultKeys = []string{"wallet", "amount", "from", "to"}

func newConfigCmd(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration or change stored defaults",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := a.components()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			secrets, err := yaml.Marshal(secretStatus(a.cfg))
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			defaults, err := yaml.Marshal(comps.Service.Defaults())
			if err != nil {
				return fmt.Errorf("failed to render defaults: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# effective configuration\n%s\n# secrets\n%s\n# stored defaults (%s)\n%s",
				data, secrets, comps.State.Path(), defaults)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:       "set KEY VALUE",
		Short:     "Change a stored default (wallet, amount, from, to)",
		Args:      cobra.ExactArgs(2),
		ValidArgs: defaultKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := defaultsPatch(args[0], args[1])
			if err != nil {
				return err
			}
			comps, err := a.components()
			if err != nil {
				return err
			}
			d, err := comps.Service.SetDefaults(patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Defaults updated: $%g %s -> %s", successMark("v"), d.Amount, d.FromCurrency, d.ToCurrency)
			if d.WalletAddress != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", wallet %s", schemas.MaskWallet(d.WalletAddress))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}

func defaultsPatch(key, value string) (schemas.Defaults, error) {
	value = strings.TrimSpace(value)
	var patch schemas.Defaults
	switch strings.ToLower(key) {
	case "wallet":
		patch.WalletAddress = value
	case "amount":
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil || amount <= 0 {
			return patch, fmt.Errorf("amount must be a positive number, got %q", value)
		}
		patch.Amount = amount
	case "from":
		patch.FromCurrency = value
	case "to":
		patch.ToCurrency = value
	default:
		return patch, fmt.Errorf("unknown key %q (want one of %s)", key, strings.Join(defaultKeys, ", "))
	}
	if value == "" {
		return patch, fmt.Errorf("%s cannot be empty", key)
	}
	return patch, nil
}

// secretStatus reports which secrets are configured without printing them.
func secretStatus(cfg *config.Config) map[string]string {
	state := func(v string) string {
		if v == "" {
			return "not set"
		}
		return "set"
	}
	return map[string]string{
		"jobs.token":             state(cfg.JobsCfg.Token),
		"database.url":           state(cfg.DatabaseCfg.URL),
		"profile.redis.password": state(cfg.ProfileCfg.Redis.Password),
	}
}
