package update

import (
	"sync"

	"notepad/internal/events"
)

// recorder captures emitted events in order.
type recorder struct {
	mu     sync.Mutex
	names  []events.Name
	events []any
}

func (r *recorder) Emit(name events.Name, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.events = append(r.events, payload)
}

func (r *recorder) progress() []Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Progress
	for i, n := range r.names {
		if n != events.UpdateProgress {
			continue
		}
		if p, ok := r.events[i].(Progress); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) available() []VersionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VersionInfo
	for i, n := range r.names {
		if n != events.UpdateAvailable {
			continue
		}
		if v, ok := r.events[i].(VersionInfo); ok {
			out = append(out, v)
		}
	}
	return out
}

func progressValues(ps []Progress) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.Progress
	}
	return out
}
