// Package registry is the single entry point for issuing, revoking and
// verifying certificates.
//
// A Registry owns the certificate store, the current Merkle tree snapshot and
// the root publisher behind one RWMutex. Writers hold the lock across
// mutate, rebuild, swap and publish, so published roots are observed in
// commit order. Readers hold it only long enough to copy the certificate and
// the tree pointer; trees are immutable once built.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"credledger/internal/auth"
	"credledger/internal/commit"
	"credledger/internal/credential"
	"credledger/internal/hashcodec"
	"credledger/internal/merkle"
	"credledger/internal/metrics"
	"credledger/internal/store"
	"credledger/internal/verify"
)

// ErrRevoked is returned when exporting a proof for a revoked certificate.
var ErrRevoked = errors.New("registry: certificate revoked")

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	store *store.Store
	tree  *merkle.Tree

	codec      hashcodec.Codec
	verifier   *verify.Service
	publisher  commit.Publisher
	authorizer auth.Authorizer
	recorder   metrics.Recorder
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher sets the root publisher. Defaults to a LogPublisher.
func WithPublisher(p commit.Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

// WithAuthorizer sets the issuer authorizer. Defaults to auth.AllowAll.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(r *Registry) { r.authorizer = a }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(m metrics.Recorder) Option {
	return func(r *Registry) { r.recorder = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry over s and builds the initial tree from its
// contents. No root is published until the first mutation.
func New(s *store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:      s,
		codec:      s.Codec(),
		authorizer: auth.AllowAll{},
		recorder:   metrics.Nop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = commit.NewLogPublisher(r.logger)
	}
	r.logger = r.logger.With("component", "registry")
	r.verifier = verify.NewService(r.codec, r)

	r.tree = merkle.Build(r.codec, s.LeafHashes())
	r.recorder.SetCertificates(s.Stats())
	return r
}

// IssueCertificate stores cert, rebuilds the tree and publishes the new root.
func (r *Registry) IssueCertificate(ctx context.Context, callerID string, cert credential.Certificate) (id string, err error) {
	defer metrics.Since(r.recorder, metrics.OpIssue, time.Now(), &err)

	if !r.authorizer.IsAuthorizedIssuer(callerID) {
		r.logger.WarnContext(ctx, "issue rejected", "caller", callerID, "certificate_id", cert.ID)
		return "", fmt.Errorf("issue %s: %w", cert.ID, credential.ErrUnauthorized)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err = r.store.Issue(cert)
	if err != nil {
		return "", err
	}

	r.tree = merkle.Build(r.codec, r.store.LeafHashes())
	r.publishLocked(ctx)

	r.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", id,
		"caller", callerID,
		"leaf_count", r.tree.Len(),
	)
	return id, nil
}

// RevokeCertificate marks a certificate revoked. The leaf set is unchanged,
// so the tree is kept as is, but the root is published again. Revoking an
// already revoked certificate is a successful no-op.
func (r *Registry) RevokeCertificate(ctx context.Context, callerID, id string) (err error) {
	defer metrics.Since(r.recorder, metrics.OpRevoke, time.Now(), &err)

	if !r.authorizer.IsAuthorizedIssuer(callerID) {
		r.logger.WarnContext(ctx, "revoke rejected", "caller", callerID, "certificate_id", id)
		return fmt.Errorf("revoke %s: %w", id, credential.ErrUnauthorized)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed, err := r.store.Revoke(id)
	if err != nil {
		return err
	}
	if !changed {
		r.logger.DebugContext(ctx, "certificate already revoked", "certificate_id", id)
		return nil
	}

	r.publishLocked(ctx)
	r.logger.InfoContext(ctx, "certificate revoked", "certificate_id", id, "caller", callerID)
	return nil
}

// publishLocked must be called with the write lock held.
func (r *Registry) publishLocked(ctx context.Context) {
	root, n := r.tree.Root(), r.tree.Len()

	start := time.Now()
	err := r.publisher.PublishRoot(ctx, root, n)
	r.recorder.RecordOperation(metrics.OpPublish, time.Since(start), err == nil)
	if err != nil {
		r.logger.ErrorContext(ctx, "publish root failed", "root", root.String(), "error", err)
	}

	r.recorder.SetCertificates(r.store.Stats())
}

// Snapshot captures a certificate copy and the tree it should be judged
// against under one read lock. It implements verify.Snapshotter.
func (r *Registry) Snapshot(id string) (*credential.Certificate, *merkle.Tree) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cert, _ := r.store.Get(id)
	return cert, r.tree
}

// VerifyCertificate recomputes the certificate's hash and proves it against
// the current root.
func (r *Registry) VerifyCertificate(ctx context.Context, id string) credential.VerificationResult {
	start := time.Now()
	result := r.verifier.Verify(id)
	r.recorder.RecordOperation(metrics.OpVerify, time.Since(start), true)

	r.logger.DebugContext(ctx, "certificate verified",
		"certificate_id", id,
		"valid", result.IsValid,
		"message", result.Message,
	)
	return result
}

// Proof exports a self-contained inclusion proof for the certificate's
// stored hash.
func (r *Registry) Proof(ctx context.Context, id string) (proof *merkle.InclusionProof, err error) {
	defer metrics.Since(r.recorder, metrics.OpProof, time.Now(), &err)

	cert, tree := r.Snapshot(id)
	if cert == nil {
		return nil, fmt.Errorf("proof %s: %w", id, credential.ErrNotFound)
	}
	if cert.Revoked {
		return nil, fmt.Errorf("proof %s: %w", id, ErrRevoked)
	}

	proof, err = tree.InclusionProof(cert.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("proof %s: %w", id, err)
	}
	r.logger.DebugContext(ctx, "proof exported", "certificate_id", id, "path_length", len(proof.Path))
	return proof, nil
}

// GetMerkleRoot returns the current root. It is hashcodec.Zero when nothing
// has been issued.
func (r *Registry) GetMerkleRoot() hashcodec.Hash {
	return r.Tree().Root()
}

// VerifyMerkleProof checks proof for leaf against the current root. It is
// always false for an empty registry.
func (r *Registry) VerifyMerkleProof(leaf hashcodec.Hash, proof []merkle.ProofElement) bool {
	tree := r.Tree()
	if tree.Len() == 0 {
		return false
	}
	return merkle.Verify(r.codec, leaf, proof, tree.Root())
}

// Tree returns the current immutable tree snapshot.
func (r *Registry) Tree() *merkle.Tree {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree
}

// Codec returns the hash codec in use.
func (r *Registry) Codec() hashcodec.Codec {
	return r.codec
}

// GetCertificate returns a copy of the certificate.
func (r *Registry) GetCertificate(id string) (*credential.Certificate, bool) {
	return r.store.Get(id)
}

// GetCertificatesByStudent lists a student's certificates in issue order.
func (r *Registry) GetCertificatesByStudent(studentID string) []*credential.Certificate {
	return r.store.ListByStudent(studentID)
}

// GetCertificatesByIssuer lists an issuer's certificates in issue order.
func (r *Registry) GetCertificatesByIssuer(issuerName string) []*credential.Certificate {
	return r.store.ListByIssuer(issuerName)
}

// Count returns the number of issued certificates, revoked included.
func (r *Registry) Count() int {
	return r.store.Count()
}
