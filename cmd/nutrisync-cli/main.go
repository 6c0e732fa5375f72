package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"nutrisync/internal/config"
	"nutrisync/internal/util"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "nutrisync-cli",
	Short:         "Sync daily nutrition totals into a Google Sheet",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $NUTRISYNC_CONFIG or config/nutrisync.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(runCmd, planCmd, fetchCmd, historyCmd, statusCmd)
}

// loadConfig resolves the config path the same way the daemon does and sets
// up the default logger. CLI logs go to stderr as text.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("NUTRISYNC_CONFIG")
	}
	if path == "" {
		path = "config/nutrisync.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	util.SetDefault(util.NewLoggerTo(os.Stderr, cfg.Logging.Level, "text"))
	return cfg, nil
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}
