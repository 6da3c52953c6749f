// Package notifytest provides an in-memory Notifier for tests.
package notifytest

import (
	"sync"

	"go-hotspot/notify"
)

type Recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *Recorder) Notify(msg notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *Recorder) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

// OfType returns the recorded messages of the given type.
func (r *Recorder) OfType(kind notify.Type) []notify.Message {
	var out []notify.Message
	for _, m := range r.Messages() {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}
