package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes one line per event to an io.Writer, either as
// human-readable text:
//
//	[vertex_done] run=run-001 step=2 vertex=n1 meta={"duration_ms":4}
//
// or, in JSON mode, as JSON lines suitable for log shippers:
//
//	{"runID":"run-001","step":2,"vertexID":"n1","msg":"vertex_done","meta":{"duration_ms":4}}
//
// LogEmitter never buffers; every Emit is a direct write. Wrap the writer
// in a bufio.Writer if write batching matters.
type LogEmitter struct {
	w    io.Writer
	json bool
}

// NewLogEmitter returns a LogEmitter writing to w (os.Stdout if w is nil).
// jsonMode selects JSON-lines output over the text format.
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{w: w, json: jsonMode}
}

func (l *LogEmitter) Emit(event Event) {
	if l.json {
		l.writeJSON(event)
		return
	}
	l.writeText(event)
}

// EmitBatch writes each event in order. Ordering within the batch is
// preserved; no blank lines or separators are added between events.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		l.Emit(e)
	}
	return nil
}

// Flush is a no-op: every write goes straight to the underlying writer.
func (l *LogEmitter) Flush(_ context.Context) error { return nil }

func (l *LogEmitter) writeJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID    string                 `json:"runID"`
		Step     int                    `json:"step"`
		VertexID string                 `json:"vertexID"`
		Msg      string                 `json:"msg"`
		Meta     map[string]interface{} `json:"meta"`
	}{event.RunID, event.Step, event.VertexID, event.Msg, event.Meta})
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "{\"error\":%q}\n", "marshal event: "+err.Error())
		return
	}
	_, _ = fmt.Fprintf(l.w, "%s\n", data)
}

func (l *LogEmitter) writeText(event Event) {
	_, _ = fmt.Fprintf(l.w, "[%s] run=%s step=%d vertex=%s",
		event.Msg, event.RunID, event.Step, event.VertexID)
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.w, " meta=%s", metaJSON)
		} else {
			_, _ = fmt.Fprintf(l.w, " meta=%v", event.Meta)
		}
	}
	_, _ = fmt.Fprintln(l.w)
}
