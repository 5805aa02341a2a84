package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"credledger/internal/config"
	"credledger/internal/signer"
)

func newConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show and check the configuration",
	}
	cmd.AddCommand(newConfigInitCmd(opts), newConfigShowCmd(opts), newConfigCheckCmd(opts))
	return cmd
}

func newConfigInitCmd(opts *options) *cobra.Command {
	var (
		force   bool
		issuers []string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.ConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if len(issuers) > 0 {
				cfg.Issuers.Authorized = issuers
			}
			if err := config.SaveConfig(cfg, path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration written to %s\n", path)
			for _, w := range config.Lint(cfg).Warnings() {
				fmt.Fprintf(out, "warning: %s\n", w.Error())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().StringSliceVar(&issuers, "issuer", nil, "authorized issuer principal (repeatable)")
	return cmd
}

func newConfigShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.FindConfigFile()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
}

func newConfigCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and list every finding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.FindConfigFile()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			findings := config.Lint(cfg)
			out := cmd.OutOrStdout()
			for _, f := range findings {
				level := "error"
				if f.IsWarning() {
					level = "warning"
				}
				fmt.Fprintf(out, "%s: %s\n", level, f.Error())
			}
			if findings.HasErrors() {
				return findings
			}
			fmt.Fprintln(out, "Configuration OK")
			return nil
		},
	}
}

func newKeygenCmd(opts *options) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the Ed25519 root signing key",
		Long:  "Generate the Ed25519 key that signs root commitments, writing signing.key_path\nand its .pub. Existing keys are never overwritten.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}

			pub, err := signer.GenerateKeyFiles(cfg.Signing.KeyPath, comment)
			if err != nil {
				return err
			}

			sshPub, err := ssh.NewPublicKey(pub)
			if err != nil {
				return err
			}
			fingerprint := ssh.FingerprintSHA256(sshPub)

			audit, err := newAuditLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer audit.Close()
			audit.LogKeyGenerated(cmd.Context(), cfg.Signing.KeyPath, fingerprint)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Private key: %s\n", cfg.Signing.KeyPath)
			fmt.Fprintf(out, "Public key:  %s.pub\n", cfg.Signing.KeyPath)
			fmt.Fprintf(out, "Fingerprint: %s\n", fingerprint)
			if !cfg.Signing.Enabled {
				fmt.Fprintln(out, "Set signing.enabled = true to sign root commitments.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "credledger-root", "key comment")
	return cmd
}
