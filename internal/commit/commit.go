// Package commit publishes index roots after every registry mutation.
//
// A Publisher receives the bare root. SigningPublisher turns it into a
// SignedRoot and fans it out to Sinks such as the SQLite root history.
package commit

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"credledger/internal/hashcodec"
	"credledger/internal/signer"
	"credledger/internal/store"
)

// Errors
var (
	ErrUnsigned     = errors.New("commit: root is not signed")
	ErrBadSignature = errors.New("commit: signature does not verify")
	ErrKeyMismatch  = errors.New("commit: root was signed by an untrusted key")
)

// Publisher receives every root the registry commits to.
type Publisher interface {
	PublishRoot(ctx context.Context, root hashcodec.Hash, leafCount int) error
}

// SignedRoot is a root commitment, optionally signed.
type SignedRoot struct {
	Root        hashcodec.Hash `json:"root"`
	Algorithm   string         `json:"algorithm"`
	LeafCount   int            `json:"leaf_count"`
	CommittedAt time.Time      `json:"committed_at"`
	Signature   []byte         `json:"signature,omitempty"`
	PublicKey   []byte         `json:"public_key,omitempty"`
}

// Message returns the bytes covered by the signature.
func (sr *SignedRoot) Message() []byte {
	return signer.RootMessage(sr.Algorithm, sr.Root, sr.LeafCount, sr.CommittedAt)
}

// IsSigned reports whether a signature is attached.
func (sr *SignedRoot) IsSigned() bool {
	return len(sr.Signature) > 0
}

// VerifySignedRoot checks the signature on sr. When trusted is non-nil the
// embedded public key must equal it.
func VerifySignedRoot(sr *SignedRoot, trusted ed25519.PublicKey) error {
	if sr == nil || !sr.IsSigned() {
		return ErrUnsigned
	}
	pub := ed25519.PublicKey(sr.PublicKey)
	if trusted != nil {
		if !trusted.Equal(pub) {
			return ErrKeyMismatch
		}
	}
	if !signer.Verify(pub, sr.Message(), sr.Signature) {
		return ErrBadSignature
	}
	return nil
}

// FromCommitment converts a stored root commitment.
func FromCommitment(rc *store.RootCommitment) *SignedRoot {
	return &SignedRoot{
		Root:        rc.Root,
		Algorithm:   rc.Algorithm,
		LeafCount:   rc.LeafCount,
		CommittedAt: rc.CommittedAt,
		Signature:   rc.Signature,
		PublicKey:   rc.PublicKey,
	}
}

// Sink consumes signed roots.
type Sink interface {
	Commit(ctx context.Context, sr *SignedRoot) error
}

// SigningPublisher stamps, optionally signs, and forwards roots to sinks.
// A nil key yields unsigned roots.
type SigningPublisher struct {
	algorithm string
	key       ed25519.PrivateKey
	sinks     []Sink
	now       func() time.Time

	mu   sync.Mutex
	last *SignedRoot
}

// NewSigningPublisher creates a publisher for roots computed with algorithm.
func NewSigningPublisher(algorithm string, key ed25519.PrivateKey, sinks ...Sink) *SigningPublisher {
	return &SigningPublisher{
		algorithm: algorithm,
		key:       key,
		sinks:     sinks,
		now:       time.Now,
	}
}

// PublishRoot implements Publisher. Every sink is attempted; their errors
// are joined.
func (p *SigningPublisher) PublishRoot(ctx context.Context, root hashcodec.Hash, leafCount int) error {
	sr := &SignedRoot{
		Root:        root,
		Algorithm:   p.algorithm,
		LeafCount:   leafCount,
		CommittedAt: p.now().UTC(),
	}
	if p.key != nil {
		sr.Signature = signer.Sign(p.key, sr.Message())
		sr.PublicKey = signer.PublicKey(p.key)
	}

	p.mu.Lock()
	p.last = sr
	p.mu.Unlock()

	var errs []error
	for _, s := range p.sinks {
		if err := s.Commit(ctx, sr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Last returns the most recently published root, or nil.
func (p *SigningPublisher) Last() *SignedRoot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	cp := *p.last
	return &cp
}

// RootJournal persists root commitments.
type RootJournal interface {
	RecordRoot(rc *store.RootCommitment) (int64, error)
}

// JournalSink appends every root to the SQLite root history.
type JournalSink struct {
	journal RootJournal
}

// NewJournalSink creates a sink writing to journal.
func NewJournalSink(journal RootJournal) *JournalSink {
	return &JournalSink{journal: journal}
}

// Commit implements Sink.
func (s *JournalSink) Commit(ctx context.Context, sr *SignedRoot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.journal.RecordRoot(&store.RootCommitment{
		Root:        sr.Root,
		LeafCount:   sr.LeafCount,
		Algorithm:   sr.Algorithm,
		Signature:   sr.Signature,
		PublicKey:   sr.PublicKey,
		CommittedAt: sr.CommittedAt,
	})
	if err != nil {
		return fmt.Errorf("record root: %w", err)
	}
	return nil
}

// LogSink logs signed roots.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Commit implements Sink.
func (s *LogSink) Commit(ctx context.Context, sr *SignedRoot) error {
	s.logger.InfoContext(ctx, "root committed",
		"root", sr.Root.String(),
		"leaf_count", sr.LeafCount,
		"algorithm", sr.Algorithm,
		"signed", sr.IsSigned(),
	)
	return nil
}

// LogPublisher logs bare roots without stamping or signing them.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// PublishRoot implements Publisher.
func (p *LogPublisher) PublishRoot(ctx context.Context, root hashcodec.Hash, leafCount int) error {
	p.logger.InfoContext(ctx, "root published", "root", root.String(), "leaf_count", leafCount)
	return nil
}

// Published is one root seen by a Recorder.
type Published struct {
	Root      hashcodec.Hash
	LeafCount int
}

// Recorder keeps every published root in memory.
type Recorder struct {
	mu    sync.Mutex
	roots []Published
	err   error
}

// NewRecorder creates a Recorder. A non-nil err is returned from every
// PublishRoot call after the root has been recorded.
func NewRecorder(err error) *Recorder {
	return &Recorder{err: err}
}

// PublishRoot implements Publisher.
func (r *Recorder) PublishRoot(_ context.Context, root hashcodec.Hash, leafCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots = append(r.roots, Published{Root: root, LeafCount: leafCount})
	return r.err
}

// Roots returns a copy of everything recorded so far.
func (r *Recorder) Roots() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.roots...)
}
