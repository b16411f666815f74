// Package cqrs is the orchestration layer between domain code and the event
// store. It owns the read-decide-write cycle for commands and the streaming
// fold for queries; domain code only implements the Aggregate and Query
// contracts and never touches storage directly.
//
// Entity state is never stored. Every Replay and Execute folds the stream
// from scratch; durable truth lives exclusively in the events.
//
// Typical wiring:
//
//	handler, _ := cqrs.NewHandler(store, cqrs.AggregateType[*bankaccount.Account, bankaccount.Event, bankaccount.Command, bankaccount.Services]{
//		StreamType: "account",
//		Namespace:  "account",
//		New:        bankaccount.NewAccount,
//		Unmarshal:  bankaccount.UnmarshalEvent,
//	})
//
//	account, err := handler.Execute(ctx, id, metadata, cmd, services, eventstore.ExactVersion(3))
package cqrs
