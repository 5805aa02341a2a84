package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	p := NewPrometheus("")

	p.RecordOperation(OpIssue, time.Millisecond, true)
	p.RecordOperation(OpIssue, time.Millisecond, true)
	p.RecordOperation(OpIssue, time.Millisecond, false)
	p.RecordOperation(OpVerify, time.Microsecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.operations.WithLabelValues(OpIssue, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues(OpIssue, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues(OpVerify, "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(p.duration))
}

func TestSetCertificates(t *testing.T) {
	p := NewPrometheus("test")
	p.SetCertificates(5, 2)

	assert.Equal(t, 5.0, testutil.ToFloat64(p.certificates.WithLabelValues("active")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.certificates.WithLabelValues("revoked")))

	p.SetCertificates(4, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(p.certificates.WithLabelValues("revoked")))
}

func TestSeparateRegistries(t *testing.T) {
	a := NewPrometheus("")
	b := NewPrometheus("")

	a.RecordOperation(OpRevoke, 0, true)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.operations.WithLabelValues(OpRevoke, "ok")))
}

func TestWriteTextfile(t *testing.T) {
	p := NewPrometheus("")
	p.RecordOperation(OpPublish, time.Millisecond, true)
	p.SetCertificates(1, 0)

	path := filepath.Join(t.TempDir(), "textfile", "credledger.prom")
	require.NoError(t, p.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `credledger_operations_total{op="publish",result="ok"} 1`), text)
	assert.Contains(t, text, `credledger_certificates{status="active"} 1`)
	assert.Contains(t, text, "credledger_operation_duration_seconds_bucket")
}

func TestSince(t *testing.T) {
	p := NewPrometheus("")

	func() (err error) {
		defer Since(p, OpProof, time.Now(), &err)
		return errors.New("boom")
	}()
	func() (err error) {
		defer Since(p, OpProof, time.Now(), &err)
		return nil
	}()
	Since(p, OpProof, time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.operations.WithLabelValues(OpProof, "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.operations.WithLabelValues(OpProof, "ok")))
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordOperation(OpIssue, time.Second, false)
	r.SetCertificates(1, 1)
}
