package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/zipbot/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var initToken string

func init() {
	configInitCmd.Flags().StringVar(&initToken, "token", "", "Telegram bot token to store in the new config")
	configCmd.AddCommand(configShowCmd, configValidateCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	masked := *cfg
	masked.Telegram.BotToken = maskToken(cfg.Telegram.BotToken)

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if initToken != "" {
		cfg.Telegram.BotToken = initToken
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(out, "You can now start zipbot with: zipbot start")
	return nil
}

// maskToken keeps the bot id and hides the secret part of a bot token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if i := strings.Index(token, ":"); i >= 0 {
		return token[:i+1] + "***"
	}
	return "***"
}
