package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/codeflow/internal/database"
	"git.sr.ht/~jakintosh/codeflow/internal/logging"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func newClientsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage registered OAuth clients",
	}
	cmd.AddCommand(
		newClientsAddCmd(root),
		newClientsListCmd(root),
	)
	return cmd
}

func newClientsAddCmd(root *rootOptions) *cobra.Command {
	client := &service.Client{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a client, replacing any client with the same id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), root, func(svc *service.Service) error {
				if err := svc.RegisterClient(cmd.Context(), client); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered client %s\n", client.ID)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&client.ID, "id", "", "client id")
	flags.StringVar(&client.Secret, "secret", "", "client secret")
	flags.StringVar(&client.Name, "name", "", "display name shown on the consent page")
	flags.StringSliceVar(&client.CallbackURLs, "callback", nil, "registered callback url (repeatable)")
	flags.BoolVar(&client.PKCERequired, "pkce-required", true, "require a code challenge at authorize")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("callback")
	return cmd
}

func newClientsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), root, func(svc *service.Service) error {
				clients, err := svc.Clients().ListClients(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPKCE\tCALLBACKS")
				for _, c := range clients {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", c.ID, c.Name, c.PKCERequired, strings.Join(c.CallbackURLs, ","))
				}
				return w.Flush()
			})
		},
	}
}

// withService opens the configured database for a one-shot command.
func withService(
	ctx context.Context,
	root *rootOptions,
	fn func(svc *service.Service) error,
) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.FromStrings(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err != nil {
		return err
	}

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := service.New(service.Options{
		Clients:      store.ClientRegistry(),
		Accounts:     store.AccountStore(),
		Exchanges:    store.ExchangeStore(),
		StoreTimeout: cfg.StoreTimeout,
		PasswordMode: service.PasswordModeProduction,
		Logger:       logger,
	})
	return fn(svc)
}
