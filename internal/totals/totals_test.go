package totals_test

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/totals"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func requireTotals(t *testing.T, got totals.Totals, subtotal, discount, tax, grand string) {
	t.Helper()
	require.Truef(t, got.Subtotal.Equal(dec(t, subtotal)), "subtotal: got %s want %s", got.Subtotal, subtotal)
	require.Truef(t, got.TotalDiscount.Equal(dec(t, discount)), "discount: got %s want %s", got.TotalDiscount, discount)
	require.Truef(t, got.TotalTax.Equal(dec(t, tax)), "tax: got %s want %s", got.TotalTax, tax)
	require.Truef(t, got.GrandTotal.Equal(dec(t, grand)), "grand total: got %s want %s", got.GrandTotal, grand)
}

func TestComputeEmpty(t *testing.T) {
	requireTotals(t, totals.Compute(nil), "0", "0", "0", "0")
	requireTotals(t, totals.Compute([]totals.LineItem{}), "0", "0", "0", "0")

	display := totals.Compute(nil).Display()
	require.Equal(t, totals.Display{Subtotal: "0.00", TotalDiscount: "0.00", TotalTax: "0.00", GrandTotal: "0.00"}, display)
}

func TestComputeSingleItemWithDiscountAndTax(t *testing.T) {
	items := []totals.LineItem{{
		Description: "Consulting",
		Quantity:    totals.Number(2),
		UnitPrice:   totals.Number(100),
		Discount:    totals.Number(10),
		TaxRate:     totals.Number(18),
	}}
	got := totals.Compute(items)
	requireTotals(t, got, "200", "20", "32.4", "212.4")
	require.Equal(t, "212.40", got.Display().GrandTotal)
	require.Equal(t, "32.40", got.Display().TotalTax)
}

func TestComputeMixedTextAndNumbers(t *testing.T) {
	items := []totals.LineItem{
		{Quantity: totals.Number(1), UnitPrice: totals.Number(50), Discount: totals.Number(0), TaxRate: totals.Number(0)},
		{Quantity: totals.Number(3), UnitPrice: totals.Text("20"), Discount: totals.Text(""), TaxRate: totals.Text("5")},
	}
	requireTotals(t, totals.Compute(items), "110", "0", "3", "113")
}

func TestComputeNegativeValuesPropagate(t *testing.T) {
	items := []totals.LineItem{{Quantity: totals.Number(-1), UnitPrice: totals.Number(10), Discount: totals.Number(0), TaxRate: totals.Number(0)}}
	got := totals.Compute(items)
	requireTotals(t, got, "-10", "0", "0", "-10")
	require.Equal(t, "-10.00", got.Display().GrandTotal)
}

func TestComputeTaxAboveHundredIsNotClamped(t *testing.T) {
	items := []totals.LineItem{{Quantity: totals.Text("1"), UnitPrice: totals.Text("10"), TaxRate: totals.Text("150")}}
	requireTotals(t, totals.Compute(items), "10", "0", "15", "25")
}

func TestComputeMalformedFieldOnlyZeroesThatField(t *testing.T) {
	base := totals.LineItem{
		Quantity:  totals.Text("2"),
		UnitPrice: totals.Text("100"),
		Discount:  totals.Text("10"),
		TaxRate:   totals.Text("18"),
	}
	cases := []struct {
		name   string
		mutate func(*totals.LineItem)
		want   [4]string
	}{
		{"quantity", func(li *totals.LineItem) { li.Quantity = totals.Text("abc") }, [4]string{"0", "0", "0", "0"}},
		{"unit price", func(li *totals.LineItem) { li.UnitPrice = totals.Text("abc") }, [4]string{"0", "20", "-3.6", "-23.6"}},
		{"discount", func(li *totals.LineItem) { li.Discount = totals.Text("abc") }, [4]string{"200", "0", "36", "236"}},
		{"tax rate", func(li *totals.LineItem) { li.TaxRate = totals.Text("abc") }, [4]string{"200", "20", "0", "180"}},
		{"absent tax rate", func(li *totals.LineItem) { li.TaxRate = "" }, [4]string{"200", "20", "0", "180"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := base
			tc.mutate(&item)
			requireTotals(t, totals.Compute([]totals.LineItem{item}), tc.want[0], tc.want[1], tc.want[2], tc.want[3])
		})
	}
}

func TestComputeGrandTotalIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	items := make([]totals.LineItem, 0, 50)
	for i := 0; i < 50; i++ {
		items = append(items, totals.LineItem{
			Quantity:  totals.Dec(decimal.NewFromInt(int64(rng.Intn(20) - 2))),
			UnitPrice: totals.Dec(decimal.New(int64(rng.Intn(100000)), -2)),
			Discount:  totals.Dec(decimal.New(int64(rng.Intn(500)), -2)),
			TaxRate:   totals.Dec(decimal.New(int64(rng.Intn(2800)), -2)),
		})
	}
	got := totals.Compute(items)
	require.True(t, got.GrandTotal.Equal(got.Subtotal.Sub(got.TotalDiscount).Add(got.TotalTax)))
}

func TestComputeIsDeterministicAndOrderIndependent(t *testing.T) {
	items := []totals.LineItem{
		{Quantity: totals.Text("0.1"), UnitPrice: totals.Text("0.2"), Discount: totals.Text("0.01"), TaxRate: totals.Text("12.5")},
		{Quantity: totals.Text("3"), UnitPrice: totals.Text("19.99"), Discount: totals.Text("1.5"), TaxRate: totals.Text("18")},
		{Quantity: totals.Text("7"), UnitPrice: totals.Text("0.333"), TaxRate: totals.Text("5")},
		{Quantity: totals.Text("-2"), UnitPrice: totals.Text("4.75"), Discount: totals.Text("x")},
	}
	first := totals.Compute(items)
	second := totals.Compute(items)
	require.True(t, first.Equal(second))
	require.Equal(t, first.Display(), second.Display())

	reversed := make([]totals.LineItem, len(items))
	for i := range items {
		reversed[len(items)-1-i] = items[i]
	}
	require.True(t, first.Equal(totals.Compute(reversed)))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]totals.LineItem(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		require.True(t, first.Equal(totals.Compute(shuffled)))
	}
}

func TestComputeDoesNotMutateInput(t *testing.T) {
	items := []totals.LineItem{{Description: " widget ", Quantity: totals.Text("2"), UnitPrice: totals.Text("3")}}
	_ = totals.Compute(items)
	require.Equal(t, " widget ", items[0].Description)
	require.Equal(t, totals.Field("2"), items[0].Quantity)
}

func TestComputeConcurrentCallers(t *testing.T) {
	items := []totals.LineItem{{Quantity: totals.Text("2"), UnitPrice: totals.Text("100"), Discount: totals.Text("10"), TaxRate: totals.Text("18")}}
	want := totals.Compute(items)

	var wg sync.WaitGroup
	errs := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := totals.Compute(items); !got.Equal(want) {
				errs <- got.GrandTotal.String()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatalf("unexpected grand total %s", e)
	}
}

func TestComputeLine(t *testing.T) {
	line := totals.ComputeLine(totals.LineItem{Quantity: totals.Text("4"), UnitPrice: totals.Text("12.50"), Discount: totals.Text("0.5"), TaxRate: totals.Text("10")})
	require.True(t, line.Subtotal.Equal(dec(t, "50")))
	require.True(t, line.Discount.Equal(dec(t, "2")))
	require.True(t, line.Taxable.Equal(dec(t, "48")))
	require.True(t, line.Tax.Equal(dec(t, "4.8")))
	require.True(t, line.Total.Equal(dec(t, "52.8")))
}

func TestDisplayRounding(t *testing.T) {
	cases := map[string]string{
		"1.005":   "1.01",
		"-1.005":  "-1.01",
		"2.004":   "2.00",
		"0.1":     "0.10",
		"-0.001":  "0.00",
		"1234.5":  "1234.50",
		"99.9951": "100.00",
	}
	for in, want := range cases {
		if got := totals.Format(dec(t, in)); got != want {
			t.Fatalf("Format(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestLineItemJSONTaxAliases(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"tax_rate", `{"description":"a","quantity":1,"unit_price":"100","tax_rate":"18"}`, "18"},
		{"tax_percent", `{"description":"a","quantity":1,"unit_price":"100","tax_percent":12}`, "12"},
		{"tax", `{"description":"a","quantity":1,"unit_price":"100","tax":"5"}`, "5"},
		{"tax_rate wins", `{"quantity":1,"unit_price":"100","tax_rate":"18","tax_percent":"12","tax":"5"}`, "18"},
		{"empty tax_rate falls through", `{"quantity":1,"unit_price":"100","tax_rate":"","tax_percent":"12"}`, "12"},
		{"none", `{"quantity":1,"unit_price":"100"}`, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var item totals.LineItem
			require.NoError(t, json.Unmarshal([]byte(tc.body), &item))
			require.True(t, item.TaxRate.Decimal().Equal(dec(t, tc.want)), "got %s", item.TaxRate.Decimal())
		})
	}
}

func TestLineItemJSONLenientFields(t *testing.T) {
	var items []totals.LineItem
	body := `[
		{"description":" Design ","quantity":2,"unit_price":100,"discount":10,"tax":18},
		{"description":"Hosting","quantity":null,"unit_price":true,"discount":{"x":1},"tax":[5]}
	]`
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 2)
	require.Equal(t, "Design", items[0].Description)
	requireTotals(t, totals.Compute(items), "200", "20", "32.4", "212.4")
	requireTotals(t, totals.Compute(items[1:]), "0", "0", "0", "0")
}

func TestTotalsJSON(t *testing.T) {
	got := totals.Compute([]totals.LineItem{{Quantity: totals.Number(2), UnitPrice: totals.Number(100), Discount: totals.Number(10), TaxRate: totals.Number(18)}})
	raw, err := json.Marshal(got)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 200.0, decoded["subtotal"])
	require.Equal(t, 212.4, decoded["grand_total"])
	display, ok := decoded["display"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "212.40", display["grand_total"])
	require.Equal(t, "20.00", display["total_discount"])
}
