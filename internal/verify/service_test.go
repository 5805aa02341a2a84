package verify

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credledger/internal/credential"
	"credledger/internal/hashcodec"
	"credledger/internal/merkle"
	"credledger/internal/store"
)

// fixture serves certificates verbatim against a fixed tree, including ones
// whose fields no longer match their stored hash.
type fixture struct {
	certs map[string]*credential.Certificate
	tree  *merkle.Tree
}

func (f fixture) Snapshot(id string) (*credential.Certificate, *merkle.Tree) {
	c, ok := f.certs[id]
	if !ok {
		return nil, f.tree
	}
	return c.Clone(), f.tree
}

func fromStore(s *store.Store, tree *merkle.Tree) fixture {
	f := fixture{certs: make(map[string]*credential.Certificate), tree: tree}
	for _, c := range s.All() {
		f.certs[c.ID] = c
	}
	return f
}

func sampleCert(id string) credential.Certificate {
	return credential.Certificate{
		ID:         id,
		Issuer:     credential.Issuer{Name: "MIT", OriginID: "mit", VerificationURL: "https://mit.example/verify"},
		Recipient:  credential.Recipient{Name: "Ada", StudentID: "s-" + id, PrincipalID: "p-" + id},
		Credential: credential.Credential{DegreeType: "BSc", Major: "CS", GraduationDate: "2024-06-01", IssueDate: "2024-06-10"},
	}
}

func issuedStore(t *testing.T, ids ...string) *store.Store {
	t.Helper()
	s := store.New(hashcodec.SHA256{})
	for _, id := range ids {
		_, err := s.Issue(sampleCert(id))
		require.NoError(t, err)
	}
	return s
}

func TestVerifyValid(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1", "c2", "c3")
	tree := merkle.Build(codec, s.LeafHashes())
	svc := NewService(codec, fromStore(s, tree))

	for _, id := range []string{"c1", "c2", "c3"} {
		res := svc.Verify(id)
		assert.True(t, res.IsValid, id)
		assert.Equal(t, credential.MessageValid, res.Message)
		require.NotNil(t, res.Certificate)
		assert.Equal(t, res.Certificate.ContentHash, res.VerifiedHash)
		assert.Equal(t, tree.Root(), res.MerkleRoot)
		assert.True(t, merkle.Verify(codec, res.VerifiedHash, res.MerkleProof, res.MerkleRoot))
	}
}

func TestVerifySingleCertificateHasEmptyProof(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "only")
	tree := merkle.Build(codec, s.LeafHashes())

	res := NewService(codec, fromStore(s, tree)).Verify("only")
	assert.True(t, res.IsValid)
	assert.Empty(t, res.MerkleProof)
	assert.Equal(t, res.VerifiedHash, res.MerkleRoot)
}

func TestVerifyNotFound(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1")
	tree := merkle.Build(codec, s.LeafHashes())

	res := NewService(codec, fromStore(s, tree)).Verify("missing")
	assert.False(t, res.IsValid)
	assert.Equal(t, credential.MessageNotFound, res.Message)
	assert.Nil(t, res.Certificate)
	assert.NotNil(t, res.MerkleProof)
	assert.Empty(t, res.MerkleProof)
	assert.Equal(t, tree.Root(), res.MerkleRoot)
}

func TestVerifyRevoked(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1", "c2")
	tree := merkle.Build(codec, s.LeafHashes())
	_, err := s.Revoke("c1")
	require.NoError(t, err)

	svc := NewService(codec, fromStore(s, tree))
	res := svc.Verify("c1")
	assert.False(t, res.IsValid)
	assert.Equal(t, credential.MessageRevoked, res.Message)
	assert.Empty(t, res.MerkleProof)
	require.NotNil(t, res.Certificate)
	assert.Equal(t, res.Certificate.ContentHash, res.VerifiedHash)

	again := svc.Verify("c1")
	assert.Equal(t, res, again)

	assert.True(t, svc.Verify("c2").IsValid)
}

func TestVerifyTampered(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1", "c2")
	tree := merkle.Build(codec, s.LeafHashes())

	c1, _ := s.Get("c1")
	c2, _ := s.Get("c2")
	stored := c1.ContentHash
	c1.Credential.Major = "Forged Major"

	svc := NewService(codec, fixture{certs: map[string]*credential.Certificate{"c1": c1, "c2": c2}, tree: tree})
	res := svc.Verify("c1")
	assert.False(t, res.IsValid)
	assert.Equal(t, credential.MessageHashMismatch, res.Message)
	assert.NotEqual(t, stored, res.VerifiedHash)
	assert.Equal(t, c1.ComputeHash(codec), res.VerifiedHash)
	assert.True(t, merkle.Verify(codec, stored, res.MerkleProof, res.MerkleRoot),
		"proof for the stored hash is still reported")

	assert.True(t, svc.Verify("c2").IsValid)
}

func TestVerifyTamperedNonDomainFieldStaysValid(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1")
	tree := merkle.Build(codec, s.LeafHashes())

	c1, _ := s.Get("c1")
	c1.Credential.GPA = 4.0
	c1.Credential.Honors = "summa cum laude"

	res := NewService(codec, fixture{certs: map[string]*credential.Certificate{"c1": c1}, tree: tree}).Verify("c1")
	assert.True(t, res.IsValid)
}

func TestVerifyNotCommitted(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1")
	stale := merkle.Build(codec, nil)

	res := NewService(codec, fromStore(s, stale)).Verify("c1")
	assert.False(t, res.IsValid)
	assert.Equal(t, MessageNotCommitted, res.Message)
	assert.Equal(t, hashcodec.Zero, res.MerkleRoot)
}

func TestEvaluateNilTree(t *testing.T) {
	cert := sampleCert("c1")
	cert.ContentHash = cert.ComputeHash(hashcodec.SHA256{})

	res := Evaluate(hashcodec.SHA256{}, &cert, nil)
	assert.False(t, res.IsValid)
	assert.Equal(t, MessageNotCommitted, res.Message)
	assert.Empty(t, res.MerkleProof)
}

func TestVerifyIsRepeatable(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1", "c2", "c3", "c4", "c5")
	tree := merkle.Build(codec, s.LeafHashes())
	svc := NewService(codec, fromStore(s, tree))

	first := svc.Verify("c4")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, svc.Verify("c4"))
	}
}

// =============================================================================
// Proof verifier
// =============================================================================

func TestProofVerifierValid(t *testing.T) {
	codec := hashcodec.BLAKE2b{}
	s := store.New(codec)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Issue(sampleCert(id))
		require.NoError(t, err)
	}
	tree := merkle.Build(codec, s.LeafHashes())
	cert, _ := s.Get("c")

	proof, err := tree.InclusionProof(cert.ContentHash)
	require.NoError(t, err)

	res, err := NewProofVerifier().WithPathDetails().VerifyInclusionProof(proof)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, codec.Name(), res.Algorithm)
	assert.Len(t, res.PathValidation, len(proof.Path))
	if len(res.PathValidation) > 0 {
		assert.Equal(t, res.ComputedRoot, res.PathValidation[len(res.PathValidation)-1].ResultHash)
	}

	res, err = NewProofVerifier().VerifyCertificateProof(cert, proof)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.PathValidation)
}

func TestProofVerifierRejects(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "a", "b", "c")
	tree := merkle.Build(codec, s.LeafHashes())
	cert, _ := s.Get("a")

	proof, err := tree.InclusionProof(cert.ContentHash)
	require.NoError(t, err)

	v := NewProofVerifier()

	_, err = v.VerifyInclusionProof(nil)
	assert.ErrorIs(t, err, ErrEmptyProof)

	bad := *proof
	bad.Root = codec.Hash([]byte("other"))
	res, err := v.VerifyInclusionProof(&bad)
	assert.ErrorIs(t, err, ErrInvalidRootHash)
	assert.False(t, res.Valid)

	tampered := cert.Clone()
	tampered.Recipient.Name = "Eve"
	_, err = v.VerifyCertificateProof(tampered, proof)
	assert.ErrorIs(t, err, ErrInvalidLeafHash)

	unknown := *proof
	unknown.Algorithm = "md5"
	_, err = v.VerifyInclusionProof(&unknown)
	assert.Error(t, err)
}

// =============================================================================
// Reports
// =============================================================================

func TestReportFormats(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1", "c2", "c3")
	tree := merkle.Build(codec, s.LeafHashes())
	report := NewReport("c2", NewService(codec, fromStore(s, tree)).Verify("c2"))

	assert.True(t, report.Valid)
	assert.Equal(t, "active", report.Status)
	assert.Equal(t, "[VALID] c2: valid", report.Summary())

	var buf bytes.Buffer
	require.NoError(t, NewReportGenerator(FormatJSON).Generate(report, &buf))
	var decoded VerificationReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, report.MerkleRoot, decoded.MerkleRoot)

	buf.Reset()
	require.NoError(t, NewReportGenerator(FormatText).WithPathDetails(true).Generate(report, &buf))
	assert.Contains(t, buf.String(), "CERTIFICATE VERIFICATION REPORT")
	assert.Contains(t, buf.String(), "--- Proof Path ---")
	assert.Contains(t, buf.String(), "...")

	buf.Reset()
	require.NoError(t, NewReportGenerator(FormatMarkdown).WithVerbose(true).WithPathDetails(true).Generate(report, &buf))
	assert.Contains(t, buf.String(), "# Certificate Verification Report")
	assert.Contains(t, buf.String(), "## Proof Path")
	assert.Contains(t, buf.String(), report.MerkleRoot)

	err := NewReportGenerator("pdf").Generate(report, &buf)
	assert.Error(t, err)
}

func TestReportRevokedAt(t *testing.T) {
	codec := hashcodec.SHA256{}
	s := issuedStore(t, "c1")
	tree := merkle.Build(codec, s.LeafHashes())
	_, err := s.Revoke("c1")
	require.NoError(t, err)

	report := NewReport("c1", NewService(codec, fromStore(s, tree)).Verify("c1"))
	assert.Equal(t, "revoked", report.Status)

	var buf bytes.Buffer
	require.NoError(t, NewReportGenerator(FormatText).Generate(report, &buf))
	assert.NotContains(t, buf.String(), "Revoked At")

	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	report.RevokedAt = &at

	buf.Reset()
	require.NoError(t, NewReportGenerator(FormatText).Generate(report, &buf))
	assert.Contains(t, buf.String(), "Revoked At:      2025-03-04T05:06:07Z")

	buf.Reset()
	require.NoError(t, NewReportGenerator(FormatMarkdown).Generate(report, &buf))
	assert.Contains(t, buf.String(), "| Revoked At | 2025-03-04T05:06:07Z |")

	buf.Reset()
	require.NoError(t, NewReportGenerator(FormatJSON).Generate(report, &buf))
	var decoded VerificationReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.NotNil(t, decoded.RevokedAt)
	assert.True(t, at.Equal(*decoded.RevokedAt))
}

func TestReportNotFound(t *testing.T) {
	report := NewReport("ghost", Evaluate(hashcodec.SHA256{}, nil, nil))
	assert.False(t, report.Valid)
	assert.Equal(t, "ghost", report.CertificateID)
	assert.True(t, strings.HasPrefix(report.Summary(), "[INVALID]"))
}

func TestParseReportFormat(t *testing.T) {
	for in, want := range map[string]ReportFormat{
		"":         FormatText,
		"TEXT":     FormatText,
		"json":     FormatJSON,
		"md":       FormatMarkdown,
		"markdown": FormatMarkdown,
	} {
		got, err := ParseReportFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseReportFormat("pdf")
	assert.Error(t, err)
}
