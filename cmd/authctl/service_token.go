package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chat-dashboard/internal/config"
	"chat-dashboard/internal/domain"
	"chat-dashboard/internal/service"
)

func newServiceTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service-token",
		Short: "Issue or verify RS256 conversation tokens",
	}
	cmd.AddCommand(newServiceTokenIssueCmd(), newServiceTokenVerifyCmd())
	return cmd
}

func newServiceTokenIssueCmd() *cobra.Command {
	var (
		scope   domain.ServiceScope
		role    string
		ttl     time.Duration
		keyFile string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a service token with the private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyCfg, err := config.LoadKeyConfig()
			if err != nil {
				return err
			}
			if keyFile != "" {
				keyCfg.PrivateKeyPEM = ""
				keyCfg.PrivateKeyFile = keyFile
				keyCfg.PublicKeyPEM = ""
				keyCfg.PublicKeyFile = ""
			}
			keys, err := config.LoadKeys(keyCfg)
			if err != nil {
				return err
			}
			parsed, err := domain.ParseServiceRole(role)
			if err != nil {
				return err
			}
			scope.Role = parsed

			tokens := service.NewTokenService(zap.NewNop(), service.TokenConfig{PrivateKey: keys.ServicePrivateKey})
			token, expiresAt, err := tokens.IssueServiceToken(scope, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&scope.OrganizationID, "org", "", "organization id")
	cmd.Flags().StringVar(&scope.BotID, "bot", "", "bot id")
	cmd.Flags().StringVar(&scope.ConversationID, "conversation", "", "conversation id")
	cmd.Flags().StringVar(&role, "role", string(domain.ServiceRoleAgent), "user, agent or assistant")
	cmd.Flags().DurationVar(&ttl, "ttl", service.DefaultServiceTokenTTL, "token lifetime")
	cmd.Flags().StringVar(&keyFile, "private-key-file", "", "PEM private key (default SERVICE_TOKEN_PRIVATE_KEY[_FILE])")
	return cmd
}

func newServiceTokenVerifyCmd() *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a service token with only the public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyCfg, err := config.LoadKeyConfig()
			if err != nil {
				return err
			}
			if keyFile != "" {
				keyCfg.PublicKeyPEM = ""
				keyCfg.PublicKeyFile = keyFile
			}
			pub, err := config.LoadPublicKey(keyCfg)
			if err != nil {
				return err
			}
			scope, err := service.VerifyServiceToken(args[0], pub)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(scope)
		},
	}
	cmd.Flags().StringVar(&keyFile, "public-key-file", "", "PEM public key (default SERVICE_TOKEN_PUBLIC_KEY[_FILE])")
	return cmd
}
