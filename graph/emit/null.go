package emit

import "context"

// NullEmitter discards every event. It is the engine's default sink when
// no emitter is configured.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that discards everything.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

func (n *NullEmitter) Emit(Event) {}

func (n *NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

func (n *NullEmitter) Flush(context.Context) error { return nil }
