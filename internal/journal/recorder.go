package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

const DefaultBufferSize = 256

// Sink stores facts. Write is only called from the recorder's worker.
type Sink interface {
	Write(ctx context.Context, f Fact) error
	Close() error
}

// Reader is implemented by sinks that can hand recorded facts back.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Fact, error)
}

// Recorder queues facts for a Sink without ever blocking the caller. When
// the queue is full the fact is dropped.
type Recorder struct {
	facts chan Fact
	sink  Sink

	size int
	now  func() time.Time
}

func NewRecorder(sink Sink, opts ...RecorderOpt) *Recorder {
	r := &Recorder{
		sink: sink,
		size: DefaultBufferSize,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}
	r.facts = make(chan Fact, r.size)

	return r
}

// Record queues f. It returns false if the fact was dropped.
func (r *Recorder) Record(f Fact) bool {
	if f.ID == "" {
		f.ID = ulid.Make().String()
	}
	if f.At.IsZero() {
		f.At = r.now()
	}

	select {
	case r.facts <- f:
		return true
	default:
		slog.Warn("journal queue full, dropping fact", "kind", f.Kind, "instanceId", f.InstanceID)
		return false
	}
}

// Sink returns the backend facts are written to.
func (r *Recorder) Sink() Sink {
	return r.sink
}

// Start drains queued facts into the sink until ctx is cancelled, then
// flushes whatever is still queued and closes the sink.
func (r *Recorder) Start(ctx context.Context) error {
	defer func() {
		if err := r.sink.Close(); err != nil {
			slog.WarnContext(ctx, "closing journal sink", "error", err)
		}
	}()

	for {
		select {
		case f := <-r.facts:
			r.write(ctx, f)
		case <-ctx.Done():
			r.flush()
			return nil
		}
	}
}

func (r *Recorder) flush() {
	ctx := context.Background()
	for {
		select {
		case f := <-r.facts:
			r.write(ctx, f)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, f Fact) {
	if err := r.sink.Write(ctx, f); err != nil {
		slog.WarnContext(ctx, "writing journal fact", "kind", f.Kind, "instanceId", f.InstanceID, "error", err)
	}
}
