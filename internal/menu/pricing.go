package menu

import "github.com/samber/lo"

// Total computes the live price of a document:
//
//	basePrice + Σ slot.priceDelta + Σ addon.unitPrice*addon.quantity
//
// Deltas of every slot count, selected or not. Selection only decides what
// goes into the enquiry.
func Total(d *Document) float64 {
	deltas := lo.SumBy(d.Items, func(s Slot) float64 { return s.PriceDelta })
	addons := lo.SumBy(d.Addons, func(a Addon) float64 { return a.UnitPrice * float64(a.Quantity) })
	return d.BasePrice + deltas + addons
}

// Reprice stores Total in TotalPrice.
func Reprice(d *Document) {
	d.TotalPrice = Total(d)
}
