package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

// Audit event types.
const (
	AuditEventIssue        AuditEventType = "issue"
	AuditEventRevoke       AuditEventType = "revoke"
	AuditEventVerification AuditEventType = "verification"
	AuditEventExport       AuditEventType = "export"
	AuditEventKeyGenerated AuditEventType = "key_generated"
	AuditEventConfigChange AuditEventType = "config_change"
	AuditEventPermission   AuditEventType = "permission"
	AuditEventError        AuditEventType = "error"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// AuditEvent records one registry mutation or security-relevant action.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	CallerID  string         `json:"caller_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Result    string         `json:"result"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// AuditLoggerConfig holds configuration for the audit logger.
type AuditLoggerConfig struct {
	// FilePath is the path to the audit log file.
	FilePath string

	// MaxSize is the maximum size in MB before rotation.
	MaxSize int

	// MaxAge is the maximum age in days before deletion.
	MaxAge int

	// MaxBackups is the maximum number of rotated files to keep.
	MaxBackups int

	// Compress determines if rotated logs should be compressed.
	Compress bool

	// Component is the component name for audit events.
	Component string
}

// AuditLogger appends audit events as JSON lines.
type AuditLogger struct {
	config *AuditLoggerConfig
	w      io.Writer
	closer io.Closer
	mu     sync.Mutex
	now    func() time.Time
}

// NewAuditLogger creates an AuditLogger writing to a rotated file.
func NewAuditLogger(cfg *AuditLoggerConfig) (*AuditLogger, error) {
	file, err := newRotatingFile(cfg.FilePath, cfg.MaxSize, cfg.MaxAge, cfg.MaxBackups, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("create audit log: %w", err)
	}
	return &AuditLogger{config: cfg, w: file, closer: file, now: time.Now}, nil
}

// NewAuditWriter creates an AuditLogger writing to w.
func NewAuditWriter(w io.Writer, component string) *AuditLogger {
	return &AuditLogger{
		config: &AuditLoggerConfig{Component: component},
		w:      w,
		now:    time.Now,
	}
}

// Log writes an audit event.
func (a *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = a.now().UTC()
	}
	if event.Component == "" {
		event.Component = a.config.Component
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	data = append(data, '\n')
	if _, err := a.w.Write(data); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}

	return nil
}

// LogMutation records an issue or revoke attempt by callerID.
func (a *AuditLogger) LogMutation(ctx context.Context, kind AuditEventType, callerID, certID string, err error) error {
	event := AuditEvent{
		EventType: kind,
		CallerID:  callerID,
		Resource:  certID,
		Result:    ResultSuccess,
	}
	if err != nil {
		event.Result = ResultFailure
		event.Error = err.Error()
	}
	return a.Log(ctx, event)
}

// LogDenied records a rejected caller.
func (a *AuditLogger) LogDenied(ctx context.Context, kind AuditEventType, callerID, certID string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventPermission,
		CallerID:  callerID,
		Resource:  certID,
		Result:    ResultDenied,
		Details:   map[string]any{"operation": string(kind)},
	})
}

// LogVerification records a verification outcome.
func (a *AuditLogger) LogVerification(ctx context.Context, certID string, valid bool, message string) error {
	result := ResultSuccess
	if !valid {
		result = ResultFailure
	}
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventVerification,
		Resource:  certID,
		Result:    result,
		Details:   map[string]any{"message": message},
	})
}

// LogKeyGenerated records creation of a root signing key.
func (a *AuditLogger) LogKeyGenerated(ctx context.Context, path, fingerprint string) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventKeyGenerated,
		Resource:  path,
		Result:    ResultSuccess,
		Details:   map[string]any{"fingerprint": fingerprint},
	})
}

// LogConfigChange records a reloaded setting.
func (a *AuditLogger) LogConfigChange(ctx context.Context, setting string, oldValue, newValue any) error {
	return a.Log(ctx, AuditEvent{
		EventType: AuditEventConfigChange,
		Resource:  setting,
		Result:    ResultSuccess,
		Details: map[string]any{
			"old_value": oldValue,
			"new_value": newValue,
		},
	})
}

// Close closes the underlying file, if any.
func (a *AuditLogger) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closer.Close()
}
