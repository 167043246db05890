package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/CrowderSoup/planner/services"
)

var (
	configPath string
	envPath    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "planner",
		Short:         "Personal task and calendar planner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", services.DefaultConfigFileName, "TOML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "environment file loaded before the config")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(agendaCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(doneCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(removeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the .env file, if any, then the TOML config.
func loadConfig() (services.Config, error) {
	if err := services.LoadEnv(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading %s: %v", envPath, err)
	}
	return services.LoadConfig(configPath)
}

func configCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the effective configuration as TOML with secrets masked. --write saves it, secrets included, to the config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !write {
				return services.EncodeConfig(cmd.OutOrStdout(), cfg.Redacted())
			}
			if err := services.WriteConfig(configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "save to the config file instead of printing")
	return cmd
}
