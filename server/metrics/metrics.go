package metrics

// Process-local counters reported by /admin/status.

import (
	"sync"
	"sync/atomic"
)

type Counter struct {
	name string
	v    atomic.Int64
}

func (c *Counter) Inc()         { c.v.Add(1) }
func (c *Counter) Add(n int64)  { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// CounterVec is a family of counters keyed by one label.
type CounterVec struct {
	name string
	mu   sync.Mutex
	m    map[string]*Counter
}

func (v *CounterVec) WithLabelValue(label string) *Counter {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.m == nil {
		v.m = make(map[string]*Counter)
	}
	c, ok := v.m[label]
	if !ok {
		c = &Counter{name: v.name + "{" + label + "}"}
		v.m[label] = c
	}
	return c
}

func (v *CounterVec) snapshot(into map[string]int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for label, c := range v.m {
		into[v.name+"{"+label+"}"] = c.Value()
	}
}

var (
	Connections     = &Counter{name: "connections_total"}
	MessagesIn      = &CounterVec{name: "messages_in_total"}
	Errors          = &CounterVec{name: "request_errors_total"}
	RushResources   = &Counter{name: "rush_resources_awarded_total"}
	HypeInvested    = &Counter{name: "hype_invested_total"}
	ViralCycles     = &CounterVec{name: "viral_cycles_total"}
	ViralPayouts    = &Counter{name: "viral_payouts_total"}
	SurgesStarted   = &Counter{name: "surges_started_total"}
	DroppedOutbound = &Counter{name: "outbound_dropped_total"}
)

// Snapshot returns every counter value keyed by name.
func Snapshot() map[string]int64 {
	out := make(map[string]int64)
	for _, c := range []*Counter{Connections, RushResources, HypeInvested, ViralPayouts, SurgesStarted, DroppedOutbound} {
		out[c.name] = c.Value()
	}
	for _, v := range []*CounterVec{MessagesIn, Errors, ViralCycles} {
		v.snapshot(out)
	}
	return out
}
