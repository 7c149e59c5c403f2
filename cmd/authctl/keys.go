package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"chat-dashboard/internal/service"
)

func newGenKeyCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Generate an API key and print its storage hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := service.GenerateAPIKey(prefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\nhash: %s\n", raw, service.HashAPIKey(raw))
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", envOr("API_KEY_PREFIX", "cdk"), "key prefix")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <raw-key>",
		Short: "Print the SHA-256 hex hash stored for an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), service.HashAPIKey(args[0]))
			return nil
		},
	}
}

func newKeygenCmd() *cobra.Command {
	var (
		bits       int
		privateOut string
		publicOut  string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the RSA key pair for service tokens",
		Long: `Generate a PKCS#8 private key and a PKIX public key in PEM format.
Without --private-out/--public-out both are printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if bits < 2048 {
				return fmt.Errorf("--bits must be at least 2048")
			}
			key, err := rsa.GenerateKey(rand.Reader, bits)
			if err != nil {
				return err
			}
			privDER, err := x509.MarshalPKCS8PrivateKey(key)
			if err != nil {
				return err
			}
			pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			if err := writePEM(cmd.OutOrStdout(), privateOut, "PRIVATE KEY", privDER, 0o600); err != nil {
				return err
			}
			return writePEM(cmd.OutOrStdout(), publicOut, "PUBLIC KEY", pubDER, 0o644)
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA modulus size")
	cmd.Flags().StringVar(&privateOut, "private-out", "", "write the private key to this file")
	cmd.Flags().StringVar(&publicOut, "public-out", "", "write the public key to this file")
	return cmd
}

func writePEM(stdout io.Writer, path, blockType string, der []byte, perm os.FileMode) error {
	block := &pem.Block{Type: blockType, Bytes: der}
	if path == "" {
		return pem.Encode(stdout, block)
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), perm)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
