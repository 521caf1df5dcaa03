package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/gatekeeper/internal/config"
	"github.com/keyxmakerx/gatekeeper/internal/plugins/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand, which prints a
// digest suitable for BOOTSTRAP_ADMIN_DIGEST.
func NewHashPasswordCmd() *cobra.Command {
	var (
		password  string
		algorithm string
		cost      int
	)

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a password digest for BOOTSTRAP_ADMIN_DIGEST",
		Long: `Hash a password with argon2id or bcrypt and print the digest. The password
is taken from --password, or else read as the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given on --password or stdin")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}

			algorithm = strings.ToLower(algorithm)
			if algorithm != config.HashArgon2id && algorithm != config.HashBcrypt {
				return fmt.Errorf("unsupported algorithm %q", algorithm)
			}
			if algorithm == config.HashBcrypt {
				if err := config.ValidateBcryptCost(cost); err != nil {
					return err
				}
			}

			hasher := auth.NewHasher(config.AuthConfig{
				HashAlgorithm: algorithm,
				BcryptCost:    cost,
			})
			digest, err := hasher.Hash(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), digest)
			return err
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password to hash (default: read stdin)")
	cmd.Flags().StringVar(&algorithm, "algorithm", config.HashArgon2id, "argon2id or bcrypt")
	cmd.Flags().IntVar(&cost, "bcrypt-cost", 10, "bcrypt work factor")
	return cmd
}
