package account

import (
	"log"
	"math"
	"sort"

	"layeredge/server/balance"
	"layeredge/server/currency"
)

// Account is one connection's player state. It lives exactly as long as the
// connection; nothing here is persisted.
type Account struct {
	ID        string
	Resources int64
	Hype      int64
}

// maxCredit is 2^63; float amounts at or above it have no int64 value.
const maxCredit = float64(1 << 63)

// Registry maps connection ids to accounts.
//
// Registry is not safe for concurrent use. The hub confines every call to its
// event loop, which is what makes DebitHype's read-modify-write atomic.
type Registry struct {
	accounts          map[string]*Account
	startingResources int64
	startingHype      int64
}

func NewRegistry() *Registry {
	return NewRegistryWithDefaults(balance.StartingResources, balance.StartingHype)
}

func NewRegistryWithDefaults(resources, hype int64) *Registry {
	return &Registry{
		accounts:          make(map[string]*Account),
		startingResources: resources,
		startingHype:      hype,
	}
}

// Register creates a fresh account for id. A second registration of the same
// id is rejected so that a live balance is never reset to the defaults.
func (r *Registry) Register(id string) (*Account, error) {
	if _, exists := r.accounts[id]; exists {
		log.Printf("ACCOUNT: duplicate registration for %s ignored", id)
		return nil, currency.ErrDuplicateSession
	}
	acc := &Account{
		ID:        id,
		Resources: r.startingResources,
		Hype:      r.startingHype,
	}
	r.accounts[id] = acc
	log.Printf("ACCOUNT: %s registered with %d resources, %d hype", id, acc.Resources, acc.Hype)
	return acc, nil
}

// Get returns a copy of the account so callers cannot mutate registry state.
func (r *Registry) Get(id string) (Account, bool) {
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

func (r *Registry) Remove(id string) {
	if _, ok := r.accounts[id]; !ok {
		return
	}
	delete(r.accounts, id)
	log.Printf("ACCOUNT: %s removed", id)
}

// Credit adds amount to the account's resources. Fractional amounts are
// floored before they are stored or reported. A credit that would overflow
// the balance is refused and leaves it unchanged.
func (r *Registry) Credit(id string, amount float64, reason string) (newTotal, credited int64, err error) {
	acc, ok := r.accounts[id]
	if !ok {
		return 0, 0, currency.ErrSessionNotFound
	}
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) || amount >= maxCredit {
		return 0, 0, currency.ErrInvalidAmount
	}
	credited = int64(math.Floor(amount))
	if credited > math.MaxInt64-acc.Resources {
		log.Printf("ACCOUNT: credit of %d to %s would overflow, refused", credited, id)
		return acc.Resources, 0, currency.ErrInvalidAmount
	}
	acc.Resources += credited
	log.Printf("ACCOUNT: credited %d to %s (%s), new total %d", credited, id, reason, acc.Resources)
	return acc.Resources, credited, nil
}

// DebitHype subtracts amount from the account's hype.
func (r *Registry) DebitHype(id string, amount int64) (int64, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return 0, currency.ErrSessionNotFound
	}
	if amount <= 0 || amount > acc.Hype {
		return acc.Hype, currency.ErrInsufficientFunds
	}
	acc.Hype -= amount
	return acc.Hype, nil
}

func (r *Registry) Len() int { return len(r.accounts) }

// IDs returns every registered id in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.accounts))
	for id := range r.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
