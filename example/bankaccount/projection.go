package bankaccount

import (
	"github.com/replay-es/replay-go/cqrs"
	"github.com/replay-es/replay-go/eventstore"
)

// BalanceProjection is a streaming read model: the current balance of every
// account selected by its filter. It is fed one envelope at a time by
// cqrs.RunQuery and never holds the event stream itself.
type BalanceProjection struct {
	filter   eventstore.Filter
	Balances map[string]int64
}

// NewBalanceProjection creates a projection over the accounts selected by
// filter. Pass eventstore.MatchAll() to fold every account.
func NewBalanceProjection(filter eventstore.Filter) *BalanceProjection {
	return &BalanceProjection{
		filter:   filter,
		Balances: make(map[string]int64),
	}
}

// Filter selects the envelopes this projection folds.
func (p *BalanceProjection) Filter() eventstore.Filter { return p.filter }

// Update folds one envelope into the read model.
func (p *BalanceProjection) Update(envelope eventstore.Envelope[Event]) {
	key := envelope.StreamID.String()

	switch event := envelope.Payload.(type) {
	case AccountOpened:
		p.Balances[key] = 0

	case Deposited:
		p.Balances[key] += event.Amount

	case Withdrawn:
		p.Balances[key] -= event.Amount
	}
}

var _ cqrs.Query[Event] = (*BalanceProjection)(nil)
