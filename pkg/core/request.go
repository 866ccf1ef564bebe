package core

import "github.com/nikolaydubina/fpdecimal"

// Request is a validated inbound order request. Construct one with
// NewLimitRequest or NewMarketRequest; a zero Request is not valid.
// Validation happens once at construction so the engine never sees a
// malformed payload half-way through processing.
type Request struct {
	orderType OrderType
	side      Side
	quantity  fpdecimal.Decimal
	price     fpdecimal.Decimal
	traderID  string

	// replay mode: adopt a recorded timestamp instead of the engine clock
	timestamp    int64
	hasTimestamp bool

	valid bool
}

// NewLimitRequest builds a limit order request.
func NewLimitRequest(side Side, quantity, price fpdecimal.Decimal, traderID string) (Request, error) {
	if side != Bid && side != Ask {
		return Request{}, ErrInvalidSide
	}
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return Request{}, ErrInvalidQuantity
	}
	if price.LessThanOrEqual(fpdecimal.Zero) {
		return Request{}, ErrInvalidPrice
	}
	if traderID == "" {
		return Request{}, ErrInvalidTrader
	}
	return Request{
		orderType: TypeLimit,
		side:      side,
		quantity:  quantity,
		price:     price,
		traderID:  traderID,
		valid:     true,
	}, nil
}

// NewMarketRequest builds a market order request. Market orders carry no
// price; they take whatever the opposite side offers.
func NewMarketRequest(side Side, quantity fpdecimal.Decimal, traderID string) (Request, error) {
	if side != Bid && side != Ask {
		return Request{}, ErrInvalidSide
	}
	if quantity.LessThanOrEqual(fpdecimal.Zero) {
		return Request{}, ErrInvalidQuantity
	}
	if traderID == "" {
		return Request{}, ErrInvalidTrader
	}
	return Request{
		orderType: TypeMarket,
		side:      side,
		quantity:  quantity,
		traderID:  traderID,
		valid:     true,
	}, nil
}

// WithTimestamp returns a copy of the request carrying a recorded timestamp.
// The engine adopts it and advances its clock to it, which is how recorded
// event logs replay deterministically.
func (r Request) WithTimestamp(ts int64) Request {
	r.timestamp = ts
	r.hasTimestamp = true
	return r
}

// Side returns the side of the request
func (r Request) Side() Side {
	return r.side
}

// Quantity returns the requested quantity
func (r Request) Quantity() fpdecimal.Decimal {
	return r.quantity
}

// Price returns the requested limit price (zero for market requests)
func (r Request) Price() fpdecimal.Decimal {
	return r.price
}

// TraderID returns the submitting trader
func (r Request) TraderID() string {
	return r.traderID
}

// IsMarket reports whether this is a market request
func (r Request) IsMarket() bool {
	return r.orderType == TypeMarket
}
