package journal

import "time"

type RecorderOpt func(*Recorder)

// WithBufferSize sets how many facts may be queued before new ones are
// dropped.
func WithBufferSize(n int) RecorderOpt {
	return func(r *Recorder) {
		if n > 0 {
			r.size = n
		}
	}
}

func WithClock(now func() time.Time) RecorderOpt {
	return func(r *Recorder) {
		r.now = now
	}
}
