package logging

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Record is a single captured log line: level, message, structured context,
// and the time it was emitted. This is the shape persisted as a Job
// Execution's captured-log blob (spec.md §4.5, §7).
type Record struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Capture is a zapcore.Core that buffers every record written to it instead
// of writing to a sink. A BaseJob installs one per execution so the finished
// execution row can be written with the full captured log (spec.md §4.5(c)).
type Capture struct {
	mu      sync.Mutex
	records []Record
}

// NewCapture returns an empty capture buffer.
func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Enabled(zapcore.Level) bool { return true }

func (c *Capture) With(fields []zapcore.Field) zapcore.Core {
	// Fields attached via Logger.With are not kept: this returns the same
	// core, so only the fields passed at the call site reach Write and the
	// captured record.
	return c
}

func (c *Capture) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return checked.AddCore(entry, c)
}

func (c *Capture) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	c.mu.Lock()
	c.records = append(c.records, Record{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
		Fields:  enc.Fields,
	})
	c.mu.Unlock()
	return nil
}

func (c *Capture) Sync() error { return nil }

// Records returns a snapshot of everything captured so far.
func (c *Capture) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Blob serializes the captured records as the log blob stored on the Job
// Execution row. Never fails: on marshal error it falls back to an empty
// array so a logging bug can never prevent an execution from being recorded.
func (c *Capture) Blob() []byte {
	records := c.Records()
	blob, err := json.Marshal(records)
	if err != nil {
		return []byte("[]")
	}
	return blob
}
