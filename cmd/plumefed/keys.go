package main

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"

	"plume/pkg/keys"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the instance actor key",
	}
	cmd.AddCommand(keysGenerateCmd(), keysShowCmd())
	return cmd
}

func keysGenerateCmd() *cobra.Command {
	var (
		out   string
		bits  int
		useEd bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new actor key pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				out = cfg.Instance.KeyPath
			}
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to replace it)", out)
			}

			var (
				key crypto.Signer
				err error
			)
			if useEd {
				key, err = keys.GenerateEd25519Key()
			} else {
				key, err = keys.GenerateRSAKey(bits)
			}
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
				return fmt.Errorf("failed to create key directory: %w", err)
			}
			if err := keys.SaveKeyPair(key, out); err != nil {
				return err
			}

			fmt.Println(accentValueStyle.Render("✓ Key pair written"))
			fmt.Println(renderField("Private key", out))
			fmt.Println(renderField("Public key", out+".pub"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "private key path (defaults to instance.key_path)")
	cmd.Flags().IntVar(&bits, "bits", keys.DefaultRSABits, "RSA key size")
	cmd.Flags().BoolVar(&useEd, "ed25519", false, "generate an Ed25519 key instead of RSA")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key")

	return cmd
}

func keysShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the actor key id and public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			key, err := keys.LoadPrivateKey(cfg.Instance.KeyPath)
			if err != nil {
				return err
			}
			pem, err := keys.EncodePublicKeyPEM(key.Public())
			if err != nil {
				return err
			}

			content := lipgloss.JoinVertical(lipgloss.Left,
				titleStyle.Render("Actor key"),
				renderField("Key ID", cfg.Instance.KeyID),
				renderField("Owner", cfg.ActorURL()),
				renderField("Algorithm", describeKey(key)),
				renderField("Path", cfg.Instance.KeyPath),
				"",
				mutedStyle.Render(string(pem)),
			)
			fmt.Println(panelStyle.Render(content))
			return nil
		},
	}
}

func describeKey(key crypto.Signer) string {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return fmt.Sprintf("RSA %d (rsa-sha256)", k.N.BitLen())
	case ed25519.PrivateKey:
		return "Ed25519 (hs2019)"
	default:
		return fmt.Sprintf("%T", key)
	}
}
