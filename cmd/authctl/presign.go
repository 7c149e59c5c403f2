package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chat-dashboard/internal/config"
	"chat-dashboard/internal/storage"
)

func newPresignCmd() *cobra.Command {
	var (
		method   string
		bucket   string
		endpoint string
		expires  time.Duration
		tempCred bool
	)
	cmd := &cobra.Command{
		Use:   "presign <key>",
		Short: "Sign a URL for one object",
		Long: `Sign a SigV4 query-string URL for one object using the STORAGE_* variables.

Examples:
  authctl presign org/1/bots/2/file.pdf --method PUT
  authctl presign org/1/bots/2/file.pdf --method GET --expires 5m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorageConfig()
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Endpoint = endpoint
			}
			if bucket != "" {
				cfg.Bucket = bucket
			}
			if tempCred {
				cfg.UseTempCredentials = true
			}
			if !cfg.Enabled() {
				return fmt.Errorf("storage not configured: set STORAGE_ENDPOINT, STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY")
			}

			presigner, err := storage.NewPresigner(cfg.Endpoint)
			if err != nil {
				return err
			}
			var minter storage.CredentialMinter
			if cfg.UseTempCredentials {
				client, err := storage.NewTempCredentialsClient(storage.TempCredentialsConfig{
					BaseURL:           cfg.APIBaseURL,
					AccountID:         cfg.AccountID,
					APIToken:          cfg.APIToken,
					ParentAccessKeyID: cfg.AccessKeyID,
				}, zap.NewNop())
				if err != nil {
					return err
				}
				minter = client
			}
			urls := storage.NewURLService(zap.NewNop(), presigner, cfg.Bucket, storage.Credentials{
				AccessKeyID:     cfg.AccessKeyID,
				SecretAccessKey: cfg.SecretAccessKey,
			}, minter)

			signed, err := urls.Presign(cmd.Context(), strings.ToUpper(method), args[0], expires)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed.URL)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", signed.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&method, "method", "GET", "HTTP method: GET, PUT, DELETE or HEAD")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket (default STORAGE_BUCKET)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "endpoint host (default STORAGE_ENDPOINT)")
	cmd.Flags().DurationVar(&expires, "expires", 0, "validity; 0 uses 20m for PUT and 15m otherwise")
	cmd.Flags().BoolVar(&tempCred, "temp-credentials", false, "sign with object-scoped temporary credentials")
	return cmd
}
