package messaging

import (
	"slices"
	"sync"
)

// LocalBus is an in-process Bus. Handlers run synchronously inside Publish,
// so delivery order equals publish order.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string][]*localSub
}

type localSub struct {
	handler func([]byte)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]*localSub)}
}

func (b *LocalBus) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	sub := &localSub{handler: handler}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.subs[subject] = slices.DeleteFunc(b.subs[subject], func(s *localSub) bool { return s == sub })
		if len(b.subs[subject]) == 0 {
			delete(b.subs, subject)
		}
	}, nil
}

func (b *LocalBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	subs := slices.Clone(b.subs[subject])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(data)
	}
	return nil
}

// Subscribers returns the number of subscriptions on subject.
func (b *LocalBus) Subscribers(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}
