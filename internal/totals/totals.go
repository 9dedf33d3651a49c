// Package totals computes invoice totals from line items using exact decimal
// arithmetic. Numeric fields that are absent or do not parse count as zero and
// no value is clamped, so negative quantities and prices flow into the result.
package totals

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of fractional digits in display text.
const DisplayPlaces = 2

// LineItem is one invoice row as supplied by a caller.
type LineItem struct {
	Description string `json:"description"`
	Quantity    Field  `json:"quantity"`
	UnitPrice   Field  `json:"unit_price"`
	Discount    Field  `json:"discount"`
	TaxRate     Field  `json:"tax_rate"`
}

// UnmarshalJSON reads the tax rate from tax_rate, tax_percent or tax, in that
// order, taking the first one that is present.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	type plain LineItem
	var aux struct {
		plain
		TaxPercent Field `json:"tax_percent"`
		Tax        Field `json:"tax"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*li = LineItem(aux.plain)
	li.Description = strings.TrimSpace(li.Description)
	if li.TaxRate.IsEmpty() {
		if !aux.TaxPercent.IsEmpty() {
			li.TaxRate = aux.TaxPercent
		} else {
			li.TaxRate = aux.Tax
		}
	}
	return nil
}

// Line is the contribution of a single item to the invoice totals.
type Line struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPerUnit decimal.Decimal
	TaxRate         decimal.Decimal
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Taxable         decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
}

// ComputeLine parses the item fields and derives its subtotal, discount, tax
// and total. Discount is a per-unit amount and tax a percentage of the
// discounted value.
func ComputeLine(item LineItem) Line {
	q := item.Quantity.Decimal()
	p := item.UnitPrice.Decimal()
	d := item.Discount.Decimal()
	t := item.TaxRate.Decimal()

	subtotal := q.Mul(p)
	discount := d.Mul(q)
	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(t).Shift(-2)
	return Line{
		Quantity:        q,
		UnitPrice:       p,
		DiscountPerUnit: d,
		TaxRate:         t,
		Subtotal:        subtotal,
		Discount:        discount,
		Taxable:         taxable,
		Tax:             tax,
		Total:           taxable.Add(tax),
	}
}

// MarshalJSON renders the line with exact numbers and display text.
func (l Line) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"quantity":          Amount(l.Quantity),
		"unit_price":        Amount(l.UnitPrice),
		"discount_per_unit": Amount(l.DiscountPerUnit),
		"tax_rate":          Amount(l.TaxRate),
		"subtotal":          Amount(l.Subtotal),
		"discount":          Amount(l.Discount),
		"tax":               Amount(l.Tax),
		"total":             Amount(l.Total),
		"display": map[string]string{
			"subtotal": Format(l.Subtotal),
			"discount": Format(l.Discount),
			"tax":      Format(l.Tax),
			"total":    Format(l.Total),
		},
	})
}

// Totals holds the exact invoice totals.
type Totals struct {
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	GrandTotal    decimal.Decimal
}

// Display is the two-decimal text form of Totals.
type Display struct {
	Subtotal      string `json:"subtotal"`
	TotalDiscount string `json:"total_discount"`
	TotalTax      string `json:"total_tax"`
	GrandTotal    string `json:"grand_total"`
}

// Compute folds the items into Totals in a single pass. The result depends
// only on the multiset of items, never on their order.
func Compute(items []LineItem) Totals {
	var t Totals
	for _, item := range items {
		line := ComputeLine(item)
		t.Subtotal = t.Subtotal.Add(line.Subtotal)
		t.TotalDiscount = t.TotalDiscount.Add(line.Discount)
		t.TotalTax = t.TotalTax.Add(line.Tax)
	}
	t.GrandTotal = t.Subtotal.Sub(t.TotalDiscount).Add(t.TotalTax)
	return t
}

// Display formats every total with two fractional digits.
func (t Totals) Display() Display {
	return Display{
		Subtotal:      Format(t.Subtotal),
		TotalDiscount: Format(t.TotalDiscount),
		TotalTax:      Format(t.TotalTax),
		GrandTotal:    Format(t.GrandTotal),
	}
}

// Equal reports whether both values hold the same amounts.
func (t Totals) Equal(o Totals) bool {
	return t.Subtotal.Equal(o.Subtotal) &&
		t.TotalDiscount.Equal(o.TotalDiscount) &&
		t.TotalTax.Equal(o.TotalTax) &&
		t.GrandTotal.Equal(o.GrandTotal)
}

// MarshalJSON writes the exact totals as JSON numbers alongside their display text.
func (t Totals) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Subtotal      json.Number `json:"subtotal"`
		TotalDiscount json.Number `json:"total_discount"`
		TotalTax      json.Number `json:"total_tax"`
		GrandTotal    json.Number `json:"grand_total"`
		Display       Display     `json:"display"`
	}{
		Subtotal:      Amount(t.Subtotal),
		TotalDiscount: Amount(t.TotalDiscount),
		TotalTax:      Amount(t.TotalTax),
		GrandTotal:    Amount(t.GrandTotal),
		Display:       t.Display(),
	})
}

// Format renders d with two fractional digits, rounding half away from zero.
func Format(d decimal.Decimal) string {
	return d.StringFixed(DisplayPlaces)
}

// Amount renders d as an exact JSON number.
func Amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
