package recorder

import "time"

// SurgeEvent records a transaction surge boundary.
type SurgeEvent struct {
	Kind     string // "START" or "END"
	Duration time.Duration
	Target   int64
	At       time.Time
}

// RewardEvent records a transaction-rush payout.
type RewardEvent struct {
	PlayerID string
	Score    int64
	Target   int64
	Earned   int64
	Bonus    bool
	At       time.Time
}

// InvestmentEvent records hype moving into a meme pool.
type InvestmentEvent struct {
	PlayerID  string
	MemeID    string
	Amount    int64
	MemeTotal int64
	At        time.Time
}

// ViralEvent records the outcome of one viral-spread cycle.
type ViralEvent struct {
	MemeID        string // empty when nothing went viral
	Score         float64
	Beneficiaries []string
	RewardEach    int64
	At            time.Time
}

// Recorder keeps a write-only history of game events. It is never read back
// to restore player state.
type Recorder interface {
	RecordSurge(evt *SurgeEvent) error
	RecordReward(evt *RewardEvent) error
	RecordInvestment(evt *InvestmentEvent) error
	RecordViral(evt *ViralEvent) error
	Close() error
}
