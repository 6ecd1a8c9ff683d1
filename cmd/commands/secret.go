package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/vesper-agent/vesper/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Encrypt API keys for use in config.jsonc",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Generate the encryption key if it does not exist",
				Action: runSecretInit,
			},
			{
				Name:      "encrypt",
				Usage:     "Encrypt a value and print the ciphertext",
				ArgsUsage: "<value>",
				Action:    runSecretEncrypt,
			},
		},
	}
}

func runSecretInit(_ context.Context, _ *cli.Command) error {
	path := secrets.KeyPath()
	if err := secrets.GenerateIdentity(path); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	fmt.Printf("Encryption key ready at %s\n", path)
	return nil
}

func runSecretEncrypt(_ context.Context, cmd *cli.Command) error {
	value := cmd.Args().First()
	if value == "" {
		return fmt.Errorf("usage: vesper secret encrypt <value>")
	}

	path := secrets.KeyPath()
	if err := secrets.GenerateIdentity(path); err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	identity, err := secrets.LoadIdentity(path)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	blob, err := secrets.Encrypt(value, identity.Recipient())
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	fmt.Println(blob)
	fmt.Println("\nPaste this value into config.jsonc, e.g. \"api_key\": \"" + blob + "\"")
	return nil
}
