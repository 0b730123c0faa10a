package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// FileExporter appends migration spans to a JSONL file, one span per line.
// The migration attributes are lifted into top-level fields so a run can be
// filtered with jq, e.g. `select(.run_id == "..." and .error != null)`.
type FileExporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileExporter opens path for appending, creating it and its parent
// directories when missing.
func NewFileExporter(path string) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileExporter{file: file, enc: json.NewEncoder(file)}, nil
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	for _, span := range spans {
		if err := e.enc.Encode(NewSpanRecord(span)); err != nil {
			return fmt.Errorf("encode span %s: %w", span.Name(), err)
		}
	}
	return nil
}

// Shutdown closes the file. Later exports are dropped.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file, e.enc = nil, nil
	return err
}

// SpanRecord is one line of the trace file.
type SpanRecord struct {
	Span       string    `json:"span"`
	RunID      string    `json:"run_id,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	AnalysisID int64     `json:"analysis_id,omitempty"`
	LegacyJob  int64     `json:"legacy_job_id,omitempty"`
	Command    string    `json:"command,omitempty"`
	JobStatus  string    `json:"job_status,omitempty"`
	Start      time.Time `json:"start"`
	DurationMs float64   `json:"duration_ms"`
	Error      *string   `json:"error,omitempty"`

	TraceID string `json:"trace_id"`
	SpanID  string `json:"span_id"`
	Parent  string `json:"parent_span_id,omitempty"`

	// Attrs holds the attributes that have no field of their own.
	Attrs  map[string]any `json:"attrs,omitempty"`
	Events []EventRecord  `json:"events,omitempty"`
}

// EventRecord is a span event such as a retry or a skipped legacy job.
type EventRecord struct {
	Name      string         `json:"name"`
	Time      time.Time      `json:"time"`
	LegacyJob int64          `json:"legacy_job_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// NewSpanRecord converts span into its trace file line.
func NewSpanRecord(span sdktrace.ReadOnlySpan) SpanRecord {
	rec := SpanRecord{
		Span:       span.Name(),
		Start:      span.StartTime().UTC(),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000,
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
	}
	if span.Parent().IsValid() {
		rec.Parent = span.Parent().SpanID().String()
	}
	if st := span.Status(); st.Code == codes.Error {
		msg := st.Description
		rec.Error = &msg
	}

	for _, kv := range span.Attributes() {
		switch string(kv.Key) {
		case AttrRunID:
			rec.RunID = kv.Value.AsString()
		case AttrDryRun:
			rec.DryRun = kv.Value.AsBool()
		case AttrOutcome:
			rec.Outcome = kv.Value.AsString()
		case AttrAnalysisID:
			rec.AnalysisID = kv.Value.AsInt64()
		case AttrLegacyJob:
			rec.LegacyJob = kv.Value.AsInt64()
		case AttrCommand:
			rec.Command = kv.Value.AsString()
		case AttrJobStatus:
			rec.JobStatus = kv.Value.AsString()
		default:
			rec.Attrs = addAttr(rec.Attrs, kv)
		}
	}

	for _, ev := range span.Events() {
		er := EventRecord{Name: ev.Name, Time: ev.Time.UTC()}
		for _, kv := range ev.Attributes {
			if string(kv.Key) == AttrLegacyJob {
				er.LegacyJob = kv.Value.AsInt64()
				continue
			}
			er.Attrs = addAttr(er.Attrs, kv)
		}
		rec.Events = append(rec.Events, er)
	}
	return rec
}

func addAttr(m map[string]any, kv attribute.KeyValue) map[string]any {
	if m == nil {
		m = make(map[string]any)
	}
	m[string(kv.Key)] = kv.Value.AsInterface()
	return m
}
