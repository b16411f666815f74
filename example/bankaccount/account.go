// Package bankaccount is a small but complete consumer of the cqrs and
// eventstore packages: a bank account entity with a closed event set, a
// command set with business-rule validation, and the decoder that brings
// stored payloads back to life. It doubles as the reference for how domain
// packages are expected to wire themselves up.
package bankaccount

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"github.com/replay-es/replay-go/cqrs"
	"github.com/replay-es/replay-go/eserrors"
	"github.com/replay-es/replay-go/eventstore"
)

const (
	// StreamType groups all account streams.
	StreamType = "account"

	// Namespace is the stream id namespace account streams live in.
	Namespace = "account"
)

// Event type identifiers.
const (
	AccountOpenedEventType = "AccountOpened"
	DepositedEventType     = "Deposited"
	WithdrawnEventType     = "Withdrawn"
)

// Event is the closed set of account events.
type Event interface {
	eventstore.Event
	isAccountEvent()
}

// AccountOpened records that the account came into existence.
type AccountOpened struct {
	AccountNumber string `json:"account_number"`
}

// Deposited records money put into the account. Amounts are in cents.
type Deposited struct {
	Amount int64 `json:"amount"`
}

// Withdrawn records money taken out of the account. Amounts are in cents.
type Withdrawn struct {
	Amount int64 `json:"amount"`
}

func (AccountOpened) EventType() string { return AccountOpenedEventType }
func (Deposited) EventType() string     { return DepositedEventType }
func (Withdrawn) EventType() string     { return WithdrawnEventType }

func (AccountOpened) isAccountEvent() {}
func (Deposited) isAccountEvent()     {}
func (Withdrawn) isAccountEvent()     {}

// UnmarshalEvent decodes a stored payload by its event type tag.
func UnmarshalEvent(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case AccountOpenedEventType:
		var event AccountOpened
		return event, jsoniter.ConfigFastest.Unmarshal(payload, &event)

	case DepositedEventType:
		var event Deposited
		return event, jsoniter.ConfigFastest.Unmarshal(payload, &event)

	case WithdrawnEventType:
		var event Withdrawn
		return event, jsoniter.ConfigFastest.Unmarshal(payload, &event)

	default:
		return nil, eserrors.InvalidInput("unknown account event type").
			WithOperation("bankaccount.UnmarshalEvent").
			WithContext("event_type", eventType)
	}
}

// Command is the closed set of account commands.
type Command interface {
	isAccountCommand()
}

// OpenAccount opens the account with the given account number.
type OpenAccount struct {
	AccountNumber string
}

// Deposit puts money into the account. Amounts are in cents.
type Deposit struct {
	Amount int64
}

// Withdraw takes money out of the account. Amounts are in cents.
type Withdraw struct {
	Amount int64
}

func (OpenAccount) isAccountCommand() {}
func (Deposit) isAccountCommand()     {}
func (Withdraw) isAccountCommand()    {}

// Services holds the external dependencies commands may consult.
type Services interface {
	// ValidateAccountNumber reports whether an account number is acceptable.
	ValidateAccountNumber(ctx context.Context, accountNumber string) bool
}

// Account is the bank account entity. Its state exists only in memory,
// rebuilt from the stream on every replay.
type Account struct {
	ID            eventstore.StreamID
	AccountNumber string
	Balance       int64
	Opened        bool
}

// NewAccount creates the identity value events are folded into.
func NewAccount(id eventstore.StreamID) *Account {
	return &Account{ID: id}
}

// Apply folds one event into the account state. Apply never validates;
// stored events are facts.
func (a *Account) Apply(event Event) {
	switch e := event.(type) {
	case AccountOpened:
		a.AccountNumber = e.AccountNumber
		a.Opened = true

	case Deposited:
		a.Balance += e.Amount

	case Withdrawn:
		a.Balance -= e.Amount
	}
}

// Handle validates a command against the current state and returns the events
// it produces. State is not mutated here; the orchestrator folds the events in
// after they were persisted.
func (a *Account) Handle(ctx context.Context, command Command, services Services) ([]Event, error) {
	switch cmd := command.(type) {
	case OpenAccount:
		if a.Opened {
			return nil, eserrors.BusinessRuleViolation("account is already open").
				WithOperation("OpenAccount").
				WithContext("stream_id", a.ID)
		}

		if !services.ValidateAccountNumber(ctx, cmd.AccountNumber) {
			return nil, eserrors.BusinessRuleViolation("invalid account number").
				WithOperation("OpenAccount").
				WithContext("account_number", cmd.AccountNumber)
		}

		return []Event{AccountOpened{AccountNumber: cmd.AccountNumber}}, nil

	case Deposit:
		if err := a.requireOpen("Deposit"); err != nil {
			return nil, err
		}

		if cmd.Amount <= 0 {
			return nil, eserrors.InvalidInput("deposit amount must be positive").
				WithOperation("Deposit").
				WithContext("amount", cmd.Amount)
		}

		return []Event{Deposited{Amount: cmd.Amount}}, nil

	case Withdraw:
		if err := a.requireOpen("Withdraw"); err != nil {
			return nil, err
		}

		if cmd.Amount <= 0 {
			return nil, eserrors.InvalidInput("withdrawal amount must be positive").
				WithOperation("Withdraw").
				WithContext("amount", cmd.Amount)
		}

		if a.Balance < cmd.Amount {
			return nil, eserrors.BusinessRuleViolation("insufficient balance").
				WithOperation("Withdraw").
				WithContext("tried_amount", cmd.Amount).
				WithContext("balance", a.Balance)
		}

		return []Event{Withdrawn{Amount: cmd.Amount}}, nil

	default:
		return nil, eserrors.InvalidInput("unknown account command").
			WithOperation("bankaccount.Handle")
	}
}

func (a *Account) requireOpen(op string) error {
	if !a.Opened {
		return eserrors.BusinessRuleViolation("account is not open").
			WithOperation(op).
			WithContext("stream_id", a.ID)
	}

	return nil
}

// Type is the aggregate wiring handed to cqrs.NewHandler.
func Type() cqrs.AggregateType[*Account, Event, Command, Services] {
	return cqrs.AggregateType[*Account, Event, Command, Services]{
		StreamType: StreamType,
		Namespace:  Namespace,
		New:        NewAccount,
		Unmarshal:  UnmarshalEvent,
	}
}

var _ cqrs.Aggregate[Event, Command, Services] = (*Account)(nil)
