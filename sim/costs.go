package sim

import "github.com/shopspring/decimal"

const moneyPlaces = 8

var bpsDivisor = decimal.NewFromInt(10000)

// apply fills in slippage and fee for f from its raw price and
// quantity.
func (c Costs) apply(f *Fill) {
	price := decimal.NewFromFloat(f.Price)
	qty := decimal.NewFromFloat(f.Quantity)

	slipPerUnit := price.Mul(decimal.NewFromFloat(c.SlippageBps)).Div(bpsDivisor)
	f.SlippagePerUnit = slipPerUnit.InexactFloat64()
	f.Slippage = slipPerUnit.Mul(qty).Round(moneyPlaces)

	notional := price.Mul(qty)
	fee := notional.Mul(decimal.NewFromFloat(c.FeeBps)).Div(bpsDivisor).Add(c.FeePerFill)
	f.Fee = fee.Round(moneyPlaces)
}
