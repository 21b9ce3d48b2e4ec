// Package surge runs the global transaction-rush state machine.
package surge

import (
	"log"
	"time"

	"layeredge/server/balance"
	"layeredge/server/metrics"
	"layeredge/server/recorder"
	"layeredge/shared/protocol"
)

// Broadcaster delivers a message to every connected client.
type Broadcaster interface {
	Broadcast(msg any)
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. The hub's implementation runs f on its event
// loop; tests fire callbacks by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RandomSource draws uniformly from [0,1).
type RandomSource interface {
	Float64() float64
}

// TargetPolicy decides how a surge picks its verification target.
type TargetPolicy string

const (
	TargetFixed  TargetPolicy = "fixed"
	TargetRandom TargetPolicy = "random"
)

type Config struct {
	Duration     time.Duration
	Target       int64
	Policy       TargetPolicy
	TargetMin    int64
	TargetMax    int64
	RetriggerMin time.Duration
	RetriggerMax time.Duration
}

func DefaultConfig() Config {
	return Config{
		Duration:     balance.SurgeDuration,
		Target:       balance.SurgeTarget,
		Policy:       TargetFixed,
		TargetMin:    balance.SurgeTargetMin,
		TargetMax:    balance.SurgeTargetMax,
		RetriggerMin: balance.SurgeRetriggerMin,
		RetriggerMax: balance.SurgeRetriggerMax,
	}
}

// State is a read-only view of the scheduler.
type State struct {
	Active    bool
	Duration  time.Duration
	Target    int64
	StartedAt time.Time
	Pending   bool // a future start is armed
}

// Scheduler is the Idle/Active machine. At most one surge is active.
// Like the rest of the core it is confined to the hub loop.
type Scheduler struct {
	cfg   Config
	out   Broadcaster
	clock Clock
	rng   RandomSource
	rec   recorder.Recorder

	active    bool
	duration  time.Duration
	target    int64
	startedAt time.Time
	deadline  Timer
	next      Timer
	gen       uint64 // bumped per start; stale auto-end callbacks compare against it
}

func New(cfg Config, out Broadcaster, clock Clock, rng RandomSource, rec recorder.Recorder) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{cfg: cfg, out: out, clock: clock, rng: rng, rec: rec}
}

// Start opens a surge. It returns false, and changes nothing, when one is
// already active.
func (s *Scheduler) Start() bool {
	if s.active {
		log.Println("SURGE: already active, ignoring start request")
		return false
	}
	if s.next != nil {
		s.next.Stop()
		s.next = nil
	}

	s.gen++
	gen := s.gen
	s.active = true
	s.duration = s.cfg.Duration
	s.target = s.pickTarget()
	s.startedAt = s.clock.Now()

	s.out.Broadcast(protocol.SurgeStart{
		Type:      protocol.TypeSurgeStart,
		Duration:  s.duration.Milliseconds(),
		Target:    s.target,
		Timestamp: protocol.Timestamp(s.startedAt),
	})
	s.deadline = s.clock.AfterFunc(s.duration, func() { s.expire(gen) })

	metrics.SurgesStarted.Inc()
	_ = s.rec.RecordSurge(&recorder.SurgeEvent{Kind: "START", Duration: s.duration, Target: s.target, At: s.startedAt})
	log.Printf("SURGE: started, duration %s, target %d verifications", s.duration, s.target)
	return true
}

// End closes the active surge and arms the next one. It returns false when
// idle, without broadcasting or touching timers.
func (s *Scheduler) End() bool {
	if !s.active {
		log.Println("SURGE: no active surge to end")
		return false
	}
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	s.active = false

	now := s.clock.Now()
	s.out.Broadcast(protocol.SurgeEnd{Type: protocol.TypeSurgeEnd, Timestamp: protocol.Timestamp(now)})
	_ = s.rec.RecordSurge(&recorder.SurgeEvent{Kind: "END", Duration: s.duration, Target: s.target, At: now})
	log.Println("SURGE: ended")

	s.scheduleNext(s.retriggerDelay())
	return true
}

// Kick arms a start after delay unless a surge is active or already pending.
func (s *Scheduler) Kick(delay time.Duration) bool {
	if s.active || s.next != nil {
		return false
	}
	s.scheduleNext(delay)
	return true
}

// Stop cancels every pending timer. Used at shutdown.
func (s *Scheduler) Stop() {
	if s.deadline != nil {
		s.deadline.Stop()
		s.deadline = nil
	}
	if s.next != nil {
		s.next.Stop()
		s.next = nil
	}
}

func (s *Scheduler) State() State {
	return State{
		Active:    s.active,
		Duration:  s.duration,
		Target:    s.target,
		StartedAt: s.startedAt,
		Pending:   s.next != nil,
	}
}

func (s *Scheduler) expire(gen uint64) {
	if gen != s.gen || !s.active {
		return
	}
	s.deadline = nil
	s.End()
}

func (s *Scheduler) scheduleNext(delay time.Duration) {
	if s.next != nil {
		return
	}
	log.Printf("SURGE: next surge in %s", delay.Round(time.Second))
	var t Timer
	t = s.clock.AfterFunc(delay, func() {
		if s.next != t {
			return
		}
		s.next = nil
		s.Start()
	})
	s.next = t
}

func (s *Scheduler) pickTarget() int64 {
	if s.cfg.Policy != TargetRandom || s.cfg.TargetMax < s.cfg.TargetMin {
		return s.cfg.Target
	}
	span := s.cfg.TargetMax - s.cfg.TargetMin + 1
	n := int64(s.rng.Float64() * float64(span))
	if n >= span {
		n = span - 1
	}
	return s.cfg.TargetMin + n
}

func (s *Scheduler) retriggerDelay() time.Duration {
	lo, hi := s.cfg.RetriggerMin, s.cfg.RetriggerMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rng.Float64()*float64(hi-lo))
}
