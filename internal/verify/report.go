package verify

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"credledger/internal/credential"
)

// ReportFormat specifies the output format for verification reports.
type ReportFormat string

const (
	FormatJSON     ReportFormat = "json"
	FormatText     ReportFormat = "text"
	FormatMarkdown ReportFormat = "markdown"
)

// ParseReportFormat accepts the names used on the command line.
func ParseReportFormat(s string) (ReportFormat, error) {
	switch strings.ToLower(s) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format: %s", s)
	}
}

// VerificationReport is the printable form of a verification outcome.
type VerificationReport struct {
	CertificateID string           `json:"certificate_id"`
	Valid         bool             `json:"valid"`
	Status        string           `json:"status,omitempty"`
	RevokedAt     *time.Time       `json:"revoked_at,omitempty"`
	Message       string           `json:"message"`
	StudentID     string           `json:"student_id,omitempty"`
	StudentName   string           `json:"student_name,omitempty"`
	IssuerName    string           `json:"issuer_name,omitempty"`
	Degree        string           `json:"degree,omitempty"`
	StoredHash    string           `json:"stored_hash,omitempty"`
	VerifiedHash  string           `json:"verified_hash"`
	MerkleRoot    string           `json:"merkle_root"`
	ProofLength   int              `json:"proof_length"`
	Path          []PathStepResult `json:"path,omitempty"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// NewReport converts a verification result for display. id is used when the
// certificate was not found.
func NewReport(id string, result credential.VerificationResult) *VerificationReport {
	report := &VerificationReport{
		CertificateID: id,
		Valid:         result.IsValid,
		Message:       result.Message,
		VerifiedHash:  result.VerifiedHash.String(),
		MerkleRoot:    result.MerkleRoot.String(),
		ProofLength:   len(result.MerkleProof),
		GeneratedAt:   time.Now().UTC(),
	}

	if c := result.Certificate; c != nil {
		report.CertificateID = c.ID
		report.Status = c.Status()
		report.StudentID = c.Recipient.StudentID
		report.StudentName = c.Recipient.Name
		report.IssuerName = c.Issuer.Name
		report.Degree = strings.TrimSpace(c.Credential.DegreeType + " " + c.Credential.Major)
		report.StoredHash = c.ContentHash.String()
	}

	for i, elem := range result.MerkleProof {
		report.Path = append(report.Path, PathStepResult{
			Step:        i,
			SiblingHash: elem.Hash.String(),
			IsLeft:      elem.IsLeft,
		})
	}

	return report
}

// Summary generates a one-line summary of the report.
func (report *VerificationReport) Summary() string {
	var sb strings.Builder
	if report.Valid {
		sb.WriteString("[VALID]")
	} else {
		sb.WriteString("[INVALID]")
	}
	sb.WriteString(" ")
	sb.WriteString(report.CertificateID)
	sb.WriteString(": ")
	sb.WriteString(report.Message)
	return sb.String()
}

// ReportGenerator generates verification reports in various formats.
type ReportGenerator struct {
	format   ReportFormat
	verbose  bool
	showPath bool
}

// NewReportGenerator creates a new report generator.
func NewReportGenerator(format ReportFormat) *ReportGenerator {
	return &ReportGenerator{format: format}
}

// WithVerbose disables hash truncation.
func (g *ReportGenerator) WithVerbose(verbose bool) *ReportGenerator {
	g.verbose = verbose
	return g
}

// WithPathDetails includes proof steps in text and markdown output.
func (g *ReportGenerator) WithPathDetails(show bool) *ReportGenerator {
	g.showPath = show
	return g
}

// Generate produces a report in the configured format.
func (g *ReportGenerator) Generate(report *VerificationReport, w io.Writer) error {
	switch g.format {
	case FormatJSON:
		return g.generateJSON(report, w)
	case FormatText:
		return g.generateText(report, w)
	case FormatMarkdown:
		return g.generateMarkdown(report, w)
	default:
		return fmt.Errorf("unknown format: %s", g.format)
	}
}

func (g *ReportGenerator) generateJSON(report *VerificationReport, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (g *ReportGenerator) generateText(report *VerificationReport, w io.Writer) error {
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w, "                    CERTIFICATE VERIFICATION REPORT")
	fmt.Fprintln(w, "================================================================================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Result:          %s\n", g.resultString(report.Valid))
	fmt.Fprintf(w, "Message:         %s\n", report.Message)
	fmt.Fprintf(w, "Certificate:     %s\n", report.CertificateID)
	if report.Status != "" {
		fmt.Fprintf(w, "Status:          %s\n", report.Status)
	}
	if report.RevokedAt != nil {
		fmt.Fprintf(w, "Revoked At:      %s\n", report.RevokedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	if report.StudentID != "" {
		fmt.Fprintln(w, "--- Credential ---")
		fmt.Fprintf(w, "Student:         %s (%s)\n", report.StudentName, report.StudentID)
		fmt.Fprintf(w, "Issuer:          %s\n", report.IssuerName)
		fmt.Fprintf(w, "Degree:          %s\n", report.Degree)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "--- Integrity ---")
	if report.StoredHash != "" {
		fmt.Fprintf(w, "Stored Hash:     %s\n", g.truncateHash(report.StoredHash))
	}
	fmt.Fprintf(w, "Verified Hash:   %s\n", g.truncateHash(report.VerifiedHash))
	fmt.Fprintf(w, "Merkle Root:     %s\n", g.truncateHash(report.MerkleRoot))
	fmt.Fprintf(w, "Proof Length:    %d\n", report.ProofLength)
	fmt.Fprintln(w)

	if g.showPath && len(report.Path) > 0 {
		fmt.Fprintln(w, "--- Proof Path ---")
		for _, step := range report.Path {
			fmt.Fprintf(w, "  %2d %s %s\n", step.Step, g.sideString(step.IsLeft), g.truncateHash(step.SiblingHash))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "================================================================================")
	return nil
}

func (g *ReportGenerator) generateMarkdown(report *VerificationReport, w io.Writer) error {
	tmpl := `# Certificate Verification Report

| Property | Value |
|----------|-------|
| **Result** | {{.ResultString}} |
| **Message** | {{.Message}} |
| **Certificate** | ` + "`{{.CertificateID}}`" + ` |
{{- if .Status}}
| **Status** | {{.Status}} |
{{- end}}
{{- if .RevokedAt}}
| Revoked At | {{.RevokedAt.Format "2006-01-02T15:04:05Z07:00"}} |
{{- end}}
{{- if .StudentID}}
| Student | {{.StudentName}} ({{.StudentID}}) |
| Issuer | {{.IssuerName}} |
| Degree | {{.Degree}} |
{{- end}}
| Verified Hash | ` + "`{{hash .VerifiedHash}}`" + ` |
| Merkle Root | ` + "`{{hash .MerkleRoot}}`" + ` |
| Proof Length | {{.ProofLength}} |
{{if .ShowPath}}
## Proof Path

| Step | Side | Sibling |
|------|------|---------|
{{range .Path}}| {{.Step}} | {{side .IsLeft}} | ` + "`{{hash .SiblingHash}}`" + ` |
{{end}}{{end}}
---
*Report generated at {{.GeneratedAt.Format "2006-01-02T15:04:05Z07:00"}}*
`

	funcMap := template.FuncMap{
		"hash": g.truncateHash,
		"side": g.sideString,
	}

	t, err := template.New("report").Funcs(funcMap).Parse(tmpl)
	if err != nil {
		return err
	}

	view := struct {
		*VerificationReport
		ResultString string
		ShowPath     bool
	}{
		VerificationReport: report,
		ResultString:       g.resultString(report.Valid),
		ShowPath:           g.showPath && len(report.Path) > 0,
	}

	return t.Execute(w, view)
}

func (g *ReportGenerator) resultString(valid bool) string {
	if valid {
		return "VALID"
	}
	return "INVALID"
}

func (g *ReportGenerator) sideString(isLeft bool) string {
	if isLeft {
		return "L"
	}
	return "R"
}

func (g *ReportGenerator) truncateHash(hash string) string {
	if len(hash) <= 16 || g.verbose {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}
