package core

import "errors"

// Errors
var (
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidSide      = errors.New("invalid side")
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrInvalidTrader    = errors.New("invalid trader id")
	ErrEmptyTree        = errors.New("empty tree")
	ErrPriceNotFound    = errors.New("price not found")
	ErrNoSuccessor      = errors.New("no successor")
	ErrNoPredecessor    = errors.New("no predecessor")
	ErrLevelNotEmpty    = errors.New("price level not empty")
	ErrJournalFailure   = errors.New("journal failure")
)
