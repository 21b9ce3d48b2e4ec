// Package viral scores the meme market once per cycle, pays out the
// investors of at most one winner and resets the market.
package viral

import (
	"fmt"
	"log"
	"time"

	"layeredge/server/balance"
	"layeredge/server/market"
	"layeredge/server/metrics"
	"layeredge/server/recorder"
	"layeredge/shared/protocol"
)

// Gateway is the outbound side of the hub.
type Gateway interface {
	Broadcast(msg any)
	SendTo(playerID string, msg any)
}

// Ledger credits resources to a session.
type Ledger interface {
	Credit(id string, amount float64, reason string) (newTotal, credited int64, err error)
}

// Market is the part of the meme market a cycle reads and resets.
type Market interface {
	Standings() []market.Standing
	Investors(memeID string) []string
	ResetCycle()
	SnapshotAll() []protocol.MemeStatus
}

// Clock stamps recorded cycles.
type Clock interface {
	Now() time.Time
}

// RandomSource draws uniformly from [0,1).
type RandomSource interface {
	Float64() float64
}

type Config struct {
	MinHype  int64
	MinScore float64
	Reward   int64
}

func DefaultConfig() Config {
	return Config{
		MinHype:  balance.MinHypeToGoViral,
		MinScore: balance.MinViralityScoreThreshold,
		Reward:   balance.ViralRewardAmount,
	}
}

// Outcome describes one finished cycle.
type Outcome struct {
	Viral         bool
	MemeID        string
	MemeName      string
	Score         float64
	Beneficiaries []string
}

type Engine struct {
	cfg    Config
	market Market
	ledger Ledger
	out    Gateway
	rng    RandomSource
	rec    recorder.Recorder
	clock  Clock
}

func New(cfg Config, m Market, ledger Ledger, out Gateway, clock Clock, rng RandomSource, rec recorder.Recorder) *Engine {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Engine{cfg: cfg, market: m, ledger: ledger, out: out, rng: rng, rec: rec, clock: clock}
}

// Run evaluates the current cycle. Whatever the result, the market is reset
// and the fresh snapshot broadcast before Run returns.
func (e *Engine) Run() Outcome {
	log.Println("VIRAL: calculating viral spread")

	var (
		winner   market.Standing
		found    bool
		maxScore float64
	)
	for _, m := range e.market.Standings() {
		if m.Investment < e.cfg.MinHype {
			log.Printf("VIRAL: %s has %d hype, needs %d to be eligible", m.Name, m.Investment, e.cfg.MinHype)
			continue
		}
		score := float64(m.Investment) * e.rng.Float64()
		log.Printf("VIRAL: %s investment %d, virality score %.2f", m.Name, m.Investment, score)
		if !found || score > maxScore {
			winner, maxScore, found = m, score, true
		}
	}

	var out Outcome
	if found && maxScore >= e.cfg.MinScore {
		out = e.payout(winner, maxScore)
		metrics.ViralCycles.WithLabelValue("viral").Inc()
	} else {
		metrics.ViralCycles.WithLabelValue("quiet").Inc()
		log.Println("VIRAL: no meme reached viral status this cycle")
		e.out.Broadcast(protocol.NoViralEvent{
			Type:    protocol.TypeNoViralEvent,
			Message: "No meme went viral this cycle.",
		})
		_ = e.rec.RecordViral(&recorder.ViralEvent{Score: maxScore, At: e.clock.Now()})
	}

	e.market.ResetCycle()
	e.out.Broadcast(protocol.NewAllMemesStatus(e.market.SnapshotAll()))
	return out
}

// payout credits a flat reward to every investor of the winner that still
// holds a session, regardless of stake size.
func (e *Engine) payout(winner market.Standing, score float64) Outcome {
	log.Printf("VIRAL: %s went viral with score %.2f", winner.Name, score)
	reason := fmt.Sprintf("Viral Meme '%s' Payout", winner.Name)

	paid := make([]string, 0)
	for _, id := range e.market.Investors(winner.ID) {
		total, credited, err := e.ledger.Credit(id, float64(e.cfg.Reward), reason)
		if err != nil {
			log.Printf("VIRAL: skipping investor %s: %v", id, err)
			continue
		}
		paid = append(paid, id)
		metrics.ViralPayouts.Inc()
		e.out.SendTo(id, protocol.NewUpdateResources(total, credited, reason))
	}

	e.out.Broadcast(protocol.MemeViralEvent{
		Type:              protocol.TypeMemeViralEvent,
		MemeID:            winner.ID,
		MemeName:          winner.Name,
		InvestorPlayerIDs: paid,
		RewardAmount:      e.cfg.Reward,
		Message:           fmt.Sprintf("%s went VIRAL! Investors shared the spoils!", winner.Name),
	})
	_ = e.rec.RecordViral(&recorder.ViralEvent{
		MemeID:        winner.ID,
		Score:         score,
		Beneficiaries: paid,
		RewardEach:    e.cfg.Reward,
		At:            e.clock.Now(),
	})

	return Outcome{Viral: true, MemeID: winner.ID, MemeName: winner.Name, Score: score, Beneficiaries: paid}
}
