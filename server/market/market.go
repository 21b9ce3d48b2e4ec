// Package market holds the meme catalog and the per-cycle investment pools.
package market

import (
	"log"
	"math"
	"sort"

	"layeredge/server/currency"
	"layeredge/shared/protocol"
)

// Meme is one investment target. Only the pool and the ledger change at
// runtime; the pool always equals the sum of the ledger.
type Meme struct {
	ID                    string
	Name                  string
	IconKey               string
	CurrentHypeInvestment int64
	InvestorsThisCycle    map[string]int64
}

// Catalog is the fixed set of memes the server starts with.
var Catalog = []Meme{
	{ID: "meme1", Name: "Classic Doge", IconKey: "icon_doge"},
	{ID: "meme2", Name: "Stonks Guy", IconKey: "icon_stonks"},
}

// HypeWallet is the part of the session registry the market needs.
type HypeWallet interface {
	DebitHype(id string, amount int64) (int64, error)
}

type InvestResult struct {
	NewHype   int64
	MemeTotal int64
}

// Market is confined to the hub's event loop like the registry.
type Market struct {
	wallet HypeWallet
	memes  []*Meme
	byID   map[string]*Meme
}

func New(wallet HypeWallet) *Market {
	return NewWithCatalog(wallet, Catalog)
}

func NewWithCatalog(wallet HypeWallet, catalog []Meme) *Market {
	m := &Market{wallet: wallet, byID: make(map[string]*Meme, len(catalog))}
	for _, c := range catalog {
		meme := &Meme{
			ID:                 c.ID,
			Name:               c.Name,
			IconKey:            c.IconKey,
			InvestorsThisCycle: make(map[string]int64),
		}
		m.memes = append(m.memes, meme)
		m.byID[meme.ID] = meme
	}
	return m
}

// Invest moves amount hype from the player into the meme's pool. Checks run
// before any mutation, so a failed call leaves both sides untouched.
func (m *Market) Invest(playerID, memeID string, amount float64) (InvestResult, error) {
	meme, ok := m.byID[memeID]
	if !ok {
		return InvestResult{}, currency.ErrUnknownMeme
	}
	if amount <= 0 || amount != math.Trunc(amount) || amount > math.MaxInt64/2 {
		return InvestResult{}, currency.ErrInvalidAmount
	}
	whole := int64(amount)

	newHype, err := m.wallet.DebitHype(playerID, whole)
	if err != nil {
		return InvestResult{}, err
	}

	meme.CurrentHypeInvestment += whole
	meme.InvestorsThisCycle[playerID] += whole
	log.Printf("MARKET: %s invested %d hype in %s (pool %d)", playerID, whole, meme.Name, meme.CurrentHypeInvestment)

	return InvestResult{NewHype: newHype, MemeTotal: meme.CurrentHypeInvestment}, nil
}

// SnapshotAll projects every meme in catalog order, without ledgers.
func (m *Market) SnapshotAll() []protocol.MemeStatus {
	out := make([]protocol.MemeStatus, 0, len(m.memes))
	for _, meme := range m.memes {
		out = append(out, protocol.MemeStatus{
			ID:                    meme.ID,
			Name:                  meme.Name,
			CurrentHypeInvestment: meme.CurrentHypeInvestment,
			IconKey:               meme.IconKey,
		})
	}
	return out
}

// Standing is a read-only view used when scoring a cycle.
type Standing struct {
	ID         string
	Name       string
	Investment int64
}

// Standings lists every meme in catalog order.
func (m *Market) Standings() []Standing {
	out := make([]Standing, 0, len(m.memes))
	for _, meme := range m.memes {
		out = append(out, Standing{ID: meme.ID, Name: meme.Name, Investment: meme.CurrentHypeInvestment})
	}
	return out
}

// Investors returns the ids that invested in memeID this cycle, sorted.
func (m *Market) Investors(memeID string) []string {
	meme, ok := m.byID[memeID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(meme.InvestorsThisCycle))
	for id := range meme.InvestorsThisCycle {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResetCycle zeroes every pool and clears every ledger.
func (m *Market) ResetCycle() {
	for _, meme := range m.memes {
		meme.CurrentHypeInvestment = 0
		meme.InvestorsThisCycle = make(map[string]int64)
	}
	log.Println("MARKET: investments and investor lists reset for next cycle")
}

// Consistent reports whether every pool equals the sum of its ledger.
func (m *Market) Consistent() bool {
	for _, meme := range m.memes {
		var sum int64
		for _, v := range meme.InvestorsThisCycle {
			sum += v
		}
		if sum != meme.CurrentHypeInvestment {
			return false
		}
	}
	return true
}
