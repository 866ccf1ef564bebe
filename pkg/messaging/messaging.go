package messaging

// MessageSender defines an interface for publishing execution results.
// It decouples the core package from the concrete transport in the kafka
// subpackage.
type MessageSender interface {
	SendDoneMessage(done *DoneMessage) error
}

// DoneMessage is the published outcome of one processed request.
type DoneMessage struct {
	OrderID      uint64
	TraderID     string
	Side         string
	ExecutedQty  string
	RemainingQty string
	Stored       bool
	Trades       []Trade
}

// Trade is a single execution on the tape
type Trade struct {
	Timestamp     int64
	Price         string
	Quantity      string
	MakerOrderID  uint64
	MakerTraderID string
	TakerOrderID  uint64
	TakerTraderID string
}
