package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"credledger/internal/commit"
	"credledger/internal/hashcodec"
	"credledger/internal/logging"
	"credledger/internal/merkle"
	"credledger/internal/schemavalidation"
	"credledger/internal/security"
	"credledger/internal/signer"
	"credledger/internal/store"
	"credledger/internal/verify"
)

func newRootCommitCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "root",
		Short: "Show the current Merkle root and its latest commitment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			active, revoked := a.store.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Root:         %s\n", a.registry.GetMerkleRoot())
			fmt.Fprintf(out, "Algorithm:    %s\n", a.codec.Name())
			fmt.Fprintf(out, "Leaves:       %d\n", a.registry.Tree().Len())
			fmt.Fprintf(out, "Certificates: %d active, %d revoked\n", active, revoked)

			history, err := a.journal.RootHistory(1)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				fmt.Fprintln(out, "Committed:    (no commitments recorded)")
				return nil
			}
			sr := commit.FromCommitment(&history[0])
			fmt.Fprintf(out, "Committed:    %s (#%d, signed=%t)\n",
				sr.CommittedAt.Format(time.RFC3339), history[0].ID, sr.IsSigned())
			if sr.Root != a.registry.GetMerkleRoot() {
				fmt.Fprintln(out, "WARNING: latest commitment does not match the current root")
			}
			return nil
		},
	}

	cmd.AddCommand(newRootHistoryCmd(opts), newRootVerifyCmd(opts))
	return cmd
}

func newRootHistoryCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List published root commitments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.journal.RootHistory(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(history) == 0 {
				fmt.Fprintln(out, "No root commitments recorded.")
				return nil
			}

			fmt.Fprintf(out, "%-6s %-20s %-8s %-8s %s\n", "#", "COMMITTED", "LEAVES", "SIGNED", "ROOT")
			fmt.Fprintln(out, strings.Repeat("-", 110))
			for _, rc := range history {
				fmt.Fprintf(out, "%-6d %-20s %-8d %-8t %s\n",
					rc.ID, rc.CommittedAt.Format(time.RFC3339), rc.LeafCount, len(rc.Signature) > 0, rc.Root)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of commitments to show (0 for all)")
	return cmd
}

func newRootVerifyCmd(opts *options) *cobra.Command {
	var (
		pubKeyPath string
		rootHex    string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a commitment's signature and that it matches the current root",
		Long:  "Check the latest commitment's signature and that it matches the current root.\nWith --root, check the commitment recorded for that root instead; an older\nroot verifies but is reported as superseded.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if pubKeyPath == "" {
				pubKeyPath = a.cfg.Signing.PublicKeyPath
			}
			trusted, err := signer.LoadPublicKey(pubKeyPath)
			if err != nil {
				return err
			}

			var rc *store.RootCommitment
			if rootHex != "" {
				root, err := hashcodec.ParseHash(rootHex)
				if err != nil {
					return fmt.Errorf("--root: %w", err)
				}
				if rc, err = a.journal.FindRoot(root); err != nil {
					return err
				}
				if rc == nil {
					return fmt.Errorf("%w: root %s was never committed", errNotValid, root)
				}
			} else {
				history, err := a.journal.RootHistory(1)
				if err != nil {
					return err
				}
				if len(history) == 0 {
					return fmt.Errorf("%w: no root commitments recorded", errNotValid)
				}
				rc = &history[0]
			}

			sr := commit.FromCommitment(rc)
			if err := commit.VerifySignedRoot(sr, trusted); err != nil {
				return fmt.Errorf("%w: commitment #%d: %v", errNotValid, rc.ID, err)
			}

			current := a.registry.GetMerkleRoot()
			out := cmd.OutOrStdout()
			switch {
			case sr.Root == current:
				fmt.Fprintf(out, "[VALID] root %s signed at %s\n", sr.Root, sr.CommittedAt.Format(time.RFC3339))
			case rootHex != "":
				fmt.Fprintf(out, "[VALID] root %s signed at %s (superseded, current root is %s)\n",
					sr.Root, sr.CommittedAt.Format(time.RFC3339), current)
			default:
				return fmt.Errorf("%w: commitment #%d is %s, current root is %s",
					errNotValid, rc.ID, sr.Root, current)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pubKeyPath, "public-key", "", "trusted Ed25519 public key (default: signing.public_key_path)")
	cmd.Flags().StringVar(&rootHex, "root", "", "verify the commitment for this root (hex) instead of the latest")
	return cmd
}

func newProofCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Export and check inclusion proofs",
	}
	cmd.AddCommand(newProofExportCmd(opts), newProofVerifyCmd())
	return cmd
}

func newProofExportCmd(opts *options) *cobra.Command {
	var (
		output string
		binary bool
	)

	cmd := &cobra.Command{
		Use:   "export <certificate-id>",
		Short: "Export a self-contained inclusion proof",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			proof, err := a.registry.Proof(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var data []byte
			if binary {
				data = proof.Serialize()
			} else {
				if data, err = json.MarshalIndent(proof, "", "  "); err != nil {
					return err
				}
				data = append(data, '\n')
			}

			a.audit.Log(cmd.Context(), logging.AuditEvent{
				EventType: logging.AuditEventExport,
				Resource:  args[0],
				Result:    logging.ResultSuccess,
				Details:   map[string]any{"output": output, "binary": binary},
			})

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := security.WriteSecureFile(output, data, security.PermPublicFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Proof written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&binary, "binary", false, "write the compact binary encoding")
	return cmd
}

func newProofVerifyCmd() *cobra.Command {
	var (
		rootHex  string
		certPath string
		showPath bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "verify <proof-file|->",
		Short: "Verify an exported proof offline",
		Long:  "Verify an exported proof without access to the registry.\nWith --root the proof must also be for that root; with --cert the certificate must hash to the proven leaf.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFormat, err := verify.ParseReportFormat(format)
			if err != nil {
				return err
			}

			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			proof, err := decodeProof(data)
			if err != nil {
				return err
			}

			if rootHex != "" {
				root, err := hashcodec.ParseHash(rootHex)
				if err != nil {
					return fmt.Errorf("--root: %w", err)
				}
				if proof.Root != root {
					return fmt.Errorf("%w: %v", errNotValid, merkle.ErrRootMismatch)
				}
			}

			verifier := verify.NewProofVerifier()
			if showPath {
				verifier = verifier.WithPathDetails()
			}

			var result *verify.ProofVerificationResult
			if certPath != "" {
				certData, err := readInput(cmd, certPath)
				if err != nil {
					return err
				}
				cert, err := schemavalidation.DecodeIssueRequest(certData)
				if errors.Is(err, schemavalidation.ErrInvalidRequest) {
					// Full certificate records carry derived fields.
					err = json.Unmarshal(certData, &cert)
				}
				if err != nil {
					return fmt.Errorf("decode certificate: %w", err)
				}
				result, err = verifier.VerifyCertificateProof(cert, proof)
			} else {
				result, err = verifier.VerifyInclusionProof(proof)
			}
			// A failed check still carries a result worth printing.
			if result == nil {
				return err
			}

			return printProofResult(cmd, reportFormat, result)
		},
	}

	cmd.Flags().StringVar(&rootHex, "root", "", "expected root (hex)")
	cmd.Flags().StringVar(&certPath, "cert", "", "certificate JSON to bind to the proven leaf")
	cmd.Flags().BoolVar(&showPath, "path", false, "show each folding step")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json")
	return cmd
}

// decodeProof accepts the JSON or the binary proof encoding.
func decodeProof(data []byte) (*merkle.InclusionProof, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var proof merkle.InclusionProof
		if err := json.Unmarshal(trimmed, &proof); err != nil {
			return nil, fmt.Errorf("decode proof: %w", err)
		}
		return &proof, nil
	}
	return merkle.DeserializeInclusionProof(data)
}

func printProofResult(cmd *cobra.Command, format verify.ReportFormat, result *verify.ProofVerificationResult) error {
	out := cmd.OutOrStdout()

	if format == verify.FormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		status := "VALID"
		if !result.Valid {
			status = "INVALID"
		}
		fmt.Fprintf(out, "[%s] inclusion proof\n", status)
		fmt.Fprintf(out, "  Algorithm:     %s\n", result.Algorithm)
		fmt.Fprintf(out, "  Leaf:          %s\n", result.LeafHash)
		fmt.Fprintf(out, "  Expected root: %s\n", result.ExpectedRoot)
		fmt.Fprintf(out, "  Computed root: %s\n", result.ComputedRoot)
		fmt.Fprintf(out, "  Leaf count:    %d\n", result.LeafCount)
		fmt.Fprintf(out, "  Path length:   %d\n", result.PathLength)
		for _, step := range result.PathValidation {
			side := "R"
			if step.IsLeft {
				side = "L"
			}
			fmt.Fprintf(out, "    %2d %s %s -> %s\n", step.Step, side, step.SiblingHash, step.ResultHash)
		}
		if result.Error != "" {
			fmt.Fprintf(out, "  Error:         %s\n", result.Error)
		}
	}

	if !result.Valid {
		return errNotValid
	}
	return nil
}
