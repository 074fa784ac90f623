package main

import (
	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/codeflow/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "codeflow",
		Short: "OAuth 2.0 authorization code server with PKCE",
		Long: `codeflow issues authorization codes to registered clients, walks the
user through login and consent, and redeems codes for tokens.`,
		Version:      version,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "codeflow version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newClientsCmd(opts),
		newAccountsCmd(opts),
	)
	return cmd
}

// loadConfig reads the config file, if any, and the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.configPath, config.OSEnv{})
}
