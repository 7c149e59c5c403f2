package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authctl",
		Short: "Operator tooling for the chat dashboard auth core",
		Long: `authctl reads the same environment variables as the API server
(.env is loaded when present) and exposes the auth primitives for operators:

  presign         sign an S3-compatible URL for one object
  gen-key         generate an API key and print its storage hash
  hash-key        print the storage hash of an existing API key
  service-token   issue or verify RS256 conversation tokens
  keygen          generate the RSA key pair used for service tokens`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newPresignCmd(),
		newGenKeyCmd(),
		newHashKeyCmd(),
		newServiceTokenCmd(),
		newKeygenCmd(),
	)
	return root
}
