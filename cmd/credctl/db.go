package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"credledger/internal/hashcodec"
	"credledger/internal/store"
)

func newDBCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the certificate journal",
	}
	cmd.AddCommand(newDBStatusCmd(opts))
	return cmd
}

// newDBStatusCmd opens the journal without replaying it, so it still
// reports on a journal whose hash algorithm disagrees with the config.
func newDBStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the schema version, pending migrations and bound hash algorithm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			codec, err := hashcodec.ByName(cfg.Hash.Algorithm)
			if err != nil {
				return err
			}

			journal, err := store.OpenSQLite(cfg.Storage.Path, cfg.Storage.BusyTimeoutMs)
			if err != nil {
				return err
			}
			defer journal.Close()

			status, err := journal.SchemaStatus()
			if err != nil {
				return err
			}
			bound, err := journal.HashAlgorithm()
			if err != nil {
				return err
			}
			certs, err := journal.Load()
			if err != nil {
				return err
			}
			roots, err := journal.RootHistory(0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database:     %s\n", cfg.Storage.Path)
			fmt.Fprintf(out, "Schema:       version %d of %d\n", status.Version, status.Latest)
			for _, m := range status.Applied {
				fmt.Fprintf(out, "  applied %d  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339), m.Description)
			}
			for _, m := range status.Pending {
				fmt.Fprintf(out, "  pending %d  %s\n", m.Version, m.Description)
			}
			shown := bound
			if shown == "" {
				shown = "(unbound)"
			}
			fmt.Fprintf(out, "Algorithm:    %s (configured %s)\n", shown, codec.Name())
			fmt.Fprintf(out, "Certificates: %d\n", len(certs))
			fmt.Fprintf(out, "Commitments:  %d\n", len(roots))

			if bound != "" && bound != codec.Name() {
				return fmt.Errorf("%w: journal is %s, configured %s", store.ErrAlgorithmMismatch, bound, codec.Name())
			}
			return nil
		},
	}
}
