package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func newAccountsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage end-user accounts",
	}
	cmd.AddCommand(newAccountsAddCmd(root))
	return cmd
}

func newAccountsAddCmd(root *rootOptions) *cobra.Command {
	var username string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		Long: `Create an account. The password is read from the first line of stdin
when --password-stdin is set, so it never appears in the process list.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			switch {
			case passwordStdin:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password from stdin: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			case len(args) == 1:
				password = args[0]
			default:
				return errors.New("provide the password as an argument or with --password-stdin")
			}

			return withService(cmd.Context(), root, func(svc *service.Service) error {
				if err := svc.RegisterAccount(cmd.Context(), username, password); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created account %s\n", username)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
