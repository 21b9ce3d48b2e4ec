package viral

import (
	"testing"
	"time"

	"layeredge/server/account"
	"layeredge/server/market"
	"layeredge/server/recorder"
	"layeredge/shared/protocol"
)

type sent struct {
	to  string
	msg any
}

type fakeGateway struct {
	broadcasts []any
	direct     []sent
}

func (g *fakeGateway) Broadcast(msg any)         { g.broadcasts = append(g.broadcasts, msg) }
func (g *fakeGateway) SendTo(id string, msg any) { g.direct = append(g.direct, sent{id, msg}) }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

var testClock = fixedClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

// cycleLog keeps viral events and ignores everything else.
type cycleLog struct {
	recorder.NoopRecorder
	events []recorder.ViralEvent
}

func (l *cycleLog) RecordViral(evt *recorder.ViralEvent) error {
	l.events = append(l.events, *evt)
	return nil
}

type fixedRandom float64

func (f fixedRandom) Float64() float64 { return float64(f) }

// sequenceRandom returns its values in order, then repeats the last one.
type sequenceRandom struct {
	vals []float64
	i    int
}

func (s *sequenceRandom) Float64() float64 {
	v := s.vals[s.i]
	if s.i < len(s.vals)-1 {
		s.i++
	}
	return v
}

type fixture struct {
	reg *account.Registry
	mkt *market.Market
	gw  *fakeGateway
}

func newFixture(t *testing.T, players ...string) fixture {
	t.Helper()
	reg := account.NewRegistry()
	for _, id := range players {
		if _, err := reg.Register(id); err != nil {
			t.Fatal(err)
		}
	}
	return fixture{reg: reg, mkt: market.New(reg), gw: &fakeGateway{}}
}

func (f fixture) invest(t *testing.T, player, meme string, amount float64) {
	t.Helper()
	if _, err := f.mkt.Invest(player, meme, amount); err != nil {
		t.Fatalf("invest %s/%s/%v: %v", player, meme, amount, err)
	}
}

func (f fixture) resources(id string) int64 {
	acc, _ := f.reg.Get(id)
	return acc.Resources
}

func assertReset(t *testing.T, f fixture) {
	t.Helper()
	for _, s := range f.mkt.SnapshotAll() {
		if s.CurrentHypeInvestment != 0 {
			t.Fatalf("%s pool = %d after cycle", s.ID, s.CurrentHypeInvestment)
		}
		if n := len(f.mkt.Investors(s.ID)); n != 0 {
			t.Fatalf("%s still has %d investors", s.ID, n)
		}
	}
	last := f.gw.broadcasts[len(f.gw.broadcasts)-1]
	if st, ok := last.(protocol.AllMemesStatus); !ok || st.Type != protocol.TypeAllMemesStatusUpdate {
		t.Fatalf("last broadcast = %#v, want all_memes_status_update", last)
	}
}

func TestRunPaysEveryInvestorFlatReward(t *testing.T) {
	f := newFixture(t, "p1", "p2", "p3")
	f.invest(t, "p1", "meme1", 60)
	f.invest(t, "p2", "meme1", 1)
	f.invest(t, "p3", "meme2", 20)

	e := New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.9), nil)
	out := e.Run()

	if !out.Viral || out.MemeID != "meme1" {
		t.Fatalf("outcome = %+v, want meme1 viral", out)
	}
	if f.resources("p1") != 1500 || f.resources("p2") != 1500 {
		t.Fatalf("investor resources = %d, %d; want 1500 each", f.resources("p1"), f.resources("p2"))
	}
	if f.resources("p3") != 1000 {
		t.Fatalf("non-winner investor got paid: %d", f.resources("p3"))
	}
	if len(f.gw.direct) != 2 {
		t.Fatalf("direct updates = %d, want 2", len(f.gw.direct))
	}
	for _, d := range f.gw.direct {
		u, ok := d.msg.(protocol.UpdateResources)
		if !ok || u.ChangeAmount != 500 || u.NewTotal != 1500 {
			t.Fatalf("update to %s = %#v", d.to, d.msg)
		}
	}

	var viral *protocol.MemeViralEvent
	for _, b := range f.gw.broadcasts {
		if v, ok := b.(protocol.MemeViralEvent); ok {
			viral = &v
		}
	}
	if viral == nil {
		t.Fatal("no meme_viral_event broadcast")
	}
	if viral.MemeName != "Classic Doge" || viral.RewardAmount != 500 || len(viral.InvestorPlayerIDs) != 2 {
		t.Fatalf("viral event = %+v", viral)
	}
	assertReset(t, f)
}

func TestRunBelowThresholdPaysNothingButResets(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.invest(t, "p1", "meme1", 60)
	f.invest(t, "p2", "meme2", 90)

	// 90 * 0.3 = 27 < 30
	e := New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.3), nil)
	out := e.Run()

	if out.Viral {
		t.Fatalf("unexpected viral outcome %+v", out)
	}
	if f.resources("p1") != 1000 || f.resources("p2") != 1000 {
		t.Fatal("resources changed without a viral meme")
	}
	if len(f.gw.direct) != 0 {
		t.Fatalf("direct messages sent: %d", len(f.gw.direct))
	}
	if _, ok := f.gw.broadcasts[0].(protocol.NoViralEvent); !ok {
		t.Fatalf("first broadcast = %#v, want no_viral_event", f.gw.broadcasts[0])
	}
	assertReset(t, f)
}

func TestRunSkipsIneligibleMemes(t *testing.T) {
	f := newFixture(t, "p1")
	f.invest(t, "p1", "meme1", 49)

	e := New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.99), nil)
	if out := e.Run(); out.Viral {
		t.Fatalf("meme under minimum hype went viral: %+v", out)
	}
	if f.resources("p1") != 1000 {
		t.Fatal("ineligible investor got paid")
	}
	assertReset(t, f)
}

func TestRunHighestScoreWins(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.invest(t, "p1", "meme1", 100)
	f.invest(t, "p2", "meme2", 100)

	// meme1 scores 40, meme2 scores 80
	e := New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, &sequenceRandom{vals: []float64{0.4, 0.8}}, nil)
	out := e.Run()
	if out.MemeID != "meme2" {
		t.Fatalf("winner = %s, want meme2", out.MemeID)
	}
	if f.resources("p1") != 1000 || f.resources("p2") != 1500 {
		t.Fatalf("resources = %d, %d", f.resources("p1"), f.resources("p2"))
	}
}

func TestRunTieKeepsCatalogOrder(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	f.invest(t, "p1", "meme1", 80)
	f.invest(t, "p2", "meme2", 80)

	e := New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.5), nil)
	if out := e.Run(); out.MemeID != "meme1" {
		t.Fatalf("tie winner = %s, want meme1", out.MemeID)
	}
}

func TestRunSkipsDisconnectedInvestors(t *testing.T) {
	f := newFixture(t, "p1", "gone")
	f.invest(t, "p1", "meme1", 30)
	f.invest(t, "gone", "meme1", 30)
	f.reg.Remove("gone")

	e := New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.9), nil)
	out := e.Run()
	if !out.Viral {
		t.Fatal("expected viral outcome")
	}
	if len(out.Beneficiaries) != 1 || out.Beneficiaries[0] != "p1" {
		t.Fatalf("beneficiaries = %v, want [p1]", out.Beneficiaries)
	}
	if f.resources("p1") != 1500 {
		t.Fatalf("p1 resources = %d", f.resources("p1"))
	}
	assertReset(t, f)
}

func TestRunRecordsCycleAtClockTime(t *testing.T) {
	f := newFixture(t, "p1")
	f.invest(t, "p1", "meme1", 60)

	ledger := &cycleLog{}
	New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.9), ledger).Run()
	New(DefaultConfig(), f.mkt, f.reg, f.gw, testClock, fixedRandom(0.9), ledger).Run()

	if len(ledger.events) != 2 {
		t.Fatalf("recorded %d cycles, want 2", len(ledger.events))
	}
	want := time.Time(testClock)
	for i, evt := range ledger.events {
		if !evt.At.Equal(want) {
			t.Errorf("cycle %d at %v, want %v", i, evt.At, want)
		}
	}
	if ledger.events[0].MemeID != "meme1" || ledger.events[0].RewardEach != 500 {
		t.Errorf("viral cycle = %+v", ledger.events[0])
	}
	if ledger.events[1].MemeID != "" {
		t.Errorf("quiet cycle recorded winner %q", ledger.events[1].MemeID)
	}
}
