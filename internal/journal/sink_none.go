package journal

import "context"

// Discard is a Sink that forgets everything.
type Discard struct{}

func (Discard) Write(context.Context, Fact) error { return nil }
func (Discard) Close() error                      { return nil }
