package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"credledger/internal/credential"
	"credledger/internal/logging"
	"credledger/internal/schemavalidation"
	"credledger/internal/verify"
)

// readInput reads a file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// decodeRequest validates an issue request and assigns an id when absent.
func decodeRequest(data []byte) (*credential.Certificate, error) {
	cert, err := schemavalidation.DecodeIssueRequest(data)
	if err != nil {
		return nil, err
	}
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	return cert, nil
}

func requireCaller(opts *options) error {
	if strings.TrimSpace(opts.caller) == "" {
		return fmt.Errorf("%w: --caller is required", credential.ErrUnauthorized)
	}
	return nil
}

func newIssueCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <request.json|->",
		Short: "Issue a certificate from a JSON issue request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCaller(opts); err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			cert, err := decodeRequest(data)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.issue(cmd.Context(), opts.caller, cert)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Issued:  %s\n", id)
			fmt.Fprintf(out, "Root:    %s\n", a.registry.GetMerkleRoot())
			fmt.Fprintf(out, "Leaves:  %d\n", a.registry.Count())
			return nil
		},
	}
}

// issue runs one issuance and records it in the audit trail.
func (a *app) issue(ctx context.Context, caller string, cert *credential.Certificate) (string, error) {
	id, err := a.registry.IssueCertificate(ctx, caller, *cert)
	if errors.Is(err, credential.ErrUnauthorized) {
		a.audit.LogDenied(ctx, logging.AuditEventIssue, caller, cert.ID)
		return "", err
	}
	a.audit.LogMutation(ctx, logging.AuditEventIssue, caller, cert.ID, err)
	return id, err
}

func newRevokeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <certificate-id>",
		Short: "Revoke a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireCaller(opts); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, id := cmd.Context(), args[0]
			err = a.registry.RevokeCertificate(ctx, opts.caller, id)
			if errors.Is(err, credential.ErrUnauthorized) {
				a.audit.LogDenied(ctx, logging.AuditEventRevoke, opts.caller, id)
				return err
			}
			a.audit.LogMutation(ctx, logging.AuditEventRevoke, opts.caller, id, err)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Revoked: %s\n", id)
			return nil
		},
	}
}

func newVerifyCmd(opts *options) *cobra.Command {
	var (
		format  string
		verbose bool
		path    bool
	)

	cmd := &cobra.Command{
		Use:   "verify <certificate-id>",
		Short: "Verify a certificate against the current root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFormat, err := verify.ParseReportFormat(format)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			result := a.registry.VerifyCertificate(cmd.Context(), id)
			a.audit.LogVerification(cmd.Context(), id, result.IsValid, result.Message)

			report := verify.NewReport(id, result)
			if result.Certificate != nil && result.Certificate.Revoked {
				if report.RevokedAt, err = a.journal.RevokedAt(result.Certificate.ID); err != nil {
					return err
				}
			}
			gen := verify.NewReportGenerator(reportFormat).
				WithVerbose(verbose).
				WithPathDetails(path)
			if err := gen.Generate(report, cmd.OutOrStdout()); err != nil {
				return err
			}

			if !result.IsValid {
				return fmt.Errorf("%w: %s: %s", errNotValid, id, result.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text, json, markdown")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include hashes in the report")
	cmd.Flags().BoolVar(&path, "path", false, "include the proof path in the report")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <certificate-id>",
		Short: "Print a certificate as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cert, ok := a.registry.GetCertificate(args[0])
			if !ok {
				return fmt.Errorf("%s: %w", args[0], credential.ErrNotFound)
			}

			record := struct {
				*credential.Certificate
				RevokedAt *time.Time `json:"revoked_at,omitempty"`
			}{Certificate: cert}
			if cert.Revoked {
				if record.RevokedAt, err = a.journal.RevokedAt(cert.ID); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}
}

func newListCmd(opts *options) *cobra.Command {
	var student, issuer string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List certificates held by a student or issued by an institution",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (student == "") == (issuer == "") {
				return errors.New("exactly one of --student or --issuer is required")
			}

			a, err := openApp(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var certs []*credential.Certificate
			if student != "" {
				certs = a.registry.GetCertificatesByStudent(student)
			} else {
				certs = a.registry.GetCertificatesByIssuer(issuer)
			}

			out := cmd.OutOrStdout()
			if len(certs) == 0 {
				fmt.Fprintln(out, "No certificates found.")
				return nil
			}

			fmt.Fprintf(out, "%-38s %-8s %-12s %-20s %-10s\n", "ID", "STATUS", "STUDENT", "ISSUER", "ISSUED")
			fmt.Fprintln(out, strings.Repeat("-", 92))
			for _, c := range certs {
				fmt.Fprintf(out, "%-38s %-8s %-12s %-20s %-10s\n",
					c.ID, c.Status(), c.Recipient.StudentID, c.Issuer.Name, c.IssuedAt.Format(time.DateOnly))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&student, "student", "", "student id")
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer name")
	return cmd
}
