package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/market"
)

type Role = evidence.Role

const (
	RoleEntry = evidence.RoleEntry
	RoleExit  = evidence.RoleExit
)

type ExitReason string

const (
	ExitNone       ExitReason = "none"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitSessionEnd ExitReason = "session_end"
	ExitExpired    ExitReason = "expired"
)

// Fill is one simulated execution. Price is the raw executed level; costs
// are carried separately and never folded into it.
type Fill struct {
	ID       string
	IntentID string
	TradeID  string
	Symbol   string
	Side     market.Side
	Role     Role

	Time     time.Time
	BarStart time.Time
	Price    float64
	Quantity float64

	// SlippagePerUnit is the adverse price adjustment; Slippage is its
	// cash cost for the whole quantity.
	SlippagePerUnit float64
	Slippage        decimal.Decimal
	Fee             decimal.Decimal

	ExitReason ExitReason

	Gap        bool
	Tie        bool
	SessionEnd bool

	// Evidence is filled in by the classifier after simulation.
	Evidence []evidence.Code
}

// EffectivePrice is the price after slippage, worse for the trader.
func (f Fill) EffectivePrice() float64 {
	sign := f.Side.Sign()
	if f.Role == RoleExit {
		sign = -sign
	}
	return f.Price + sign*f.SlippagePerUnit
}

// Cost is fee plus slippage.
func (f Fill) Cost() decimal.Decimal {
	return f.Fee.Add(f.Slippage)
}

type OrderStatus string

const (
	StatusFilled          OrderStatus = "filled"
	StatusExpired         OrderStatus = "expired"
	StatusCanceledOCO     OrderStatus = "canceled_oco"
	StatusRejectedNetting OrderStatus = "rejected_netting"
	StatusRejected        OrderStatus = "rejected"
)

const ReasonNettingOpenPosition = "netting_open_position"

// OrderOutcome is the final state of one intent.
type OrderOutcome struct {
	Intent    intent.Intent
	Status    OrderStatus
	Reason    string
	Detail    string
	DecidedAt time.Time
	TradeID   string
}
