package core

// Journal is the optional persistence collaborator. The engine calls Begin
// before mutating state for one event, records the accepted order and every
// trade it produced, then Commit. One event is one transaction: if Commit
// fails the in-memory book and durable state may disagree, so the engine
// surfaces it as ErrJournalFailure and the caller must treat it as a fatal
// consistency fault.
//
// The engine depends only on this boundary, never on the store's schema.
type Journal interface {
	Begin(eventID uint64)
	RecordOrder(order *Order) error
	RecordTrade(trade *TradeRecord) error
	Commit() error
	Close() error
}
