// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/observability"
	"github.com/xkilldash9x/swapflow/internal/service"
)

// stderrLogs marks commands whose stdout carries data, not log lines.
const stderrLogs = "swapflow/stderr-logs"

// app carries the state shared by the commands of one invocation.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger

	comps *service.Components
	// newComponents is service.NewComponents outside of tests.
	newComponents func(cfg config.Interface, logger *zap.Logger) (*service.Components, error)
}

// components lazily initializes the shared dependencies.
func (a *app) components() (*service.Components, error) {
	if a.comps != nil {
		return a.comps, nil
	}
	comps, err := a.newComponents(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.comps = comps
	return comps, nil
}

func (a *app) shutdown() {
	if a.comps != nil {
		a.comps.Shutdown()
		a.comps = nil
	}
	observability.Sync()
}

// NewRootCommand builds a fresh command tree. Each call is independent, so the
// interactive shell can run one per line without flag state leaking.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{newComponents: service.NewComponents})
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "swapflow",
		Short: "swapflow automates exchange creation on a swap site.",
		Long: `swapflow drives a stealth browser through an exchange site's form, either
locally or as a remote job, and tracks the resulting exchanges.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v, a.cfgFile); err != nil {
				return err
			}
			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return err
			}
			a.cfg = cfg

			if _, ok := cmd.Annotations[stderrLogs]; ok {
				observability.InitializeStderrLogger(cfg.Logger())
			} else {
				observability.InitializeLogger(cfg.Logger())
			}
			a.logger = observability.GetLogger()
			a.logger.Debug("Starting swapflow", zap.String("version", Version), zap.String("command", cmd.CommandPath()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.shutdown()
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.swapflow/config.yaml)")

	rootCmd.AddCommand(
		newSwapCmd(a),
		newStatusCmd(a),
		newResultCmd(a),
		newProfilesCmd(a),
		newConfigCmd(a),
		newInteractiveCmd(a),
		newDocsCmd(),
		newRunCmd(a),
		newMCPCmd(a),
		newWorkflowCmd(a),
		newShellCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// initializeConfig reads the config file, when present, and environment variables.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.swapflow")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("SWAPFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Execute runs the command tree with the signal-aware context from main.
func Execute(ctx context.Context) error {
	return execute(ctx, NewRootCommand(), os.Stderr)
}

func execute(ctx context.Context, rootCmd *cobra.Command, stderr io.Writer) error {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(stderr, "Operation cancelled.")
		return err
	}
	fmt.Fprintf(stderr, "%s %v\n", errorMark("Error:"), err)
	return err
}
