package shipping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShippingChargesDefaultFallbacks(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := TenantConfig{
		CityCharges:           map[string]float64{"Lahore": 200},
		DefaultCityCharge:     300,
		DefaultQuantityCharge: 150,
	}

	// Known city, one product with no custom rules and quantity 1.
	got := calc.ShippingCharges(cfg, "Lahore", []Item{
		{ProductID: 1, Quantity: 1, UseDefaultShipping: true},
	})
	require.InDelta(t, 350.0, got, 0.001)

	// Unknown city falls back to the tenant default charge.
	got = calc.ShippingCharges(cfg, "Multan", []Item{
		{ProductID: 1, Quantity: 1, UseDefaultShipping: true},
	})
	require.InDelta(t, 450.0, got, 0.001)

	// City match is case-insensitive.
	got = calc.ShippingCharges(cfg, "lahore", nil)
	require.InDelta(t, 200.0, got, 0.001)
}

func TestShippingChargesCityOncePerOrder(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := TenantConfig{
		CityCharges:           map[string]float64{"Karachi": 250},
		DefaultQuantityCharge: 100,
	}

	got := calc.ShippingCharges(cfg, "Karachi", []Item{
		{ProductID: 1, Quantity: 2, UseDefaultShipping: true},
		{ProductID: 2, Quantity: 1, UseDefaultShipping: true},
		{ProductID: 3, Quantity: 5, UseDefaultShipping: true},
	})
	require.InDelta(t, 250.0+3*100.0, got, 0.001)
}

func TestShippingChargesQuantityRules(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := TenantConfig{
		QuantityRules: []Rule{
			{Min: 1, Max: 2, Type: ChargeFixed, Fee: 120},
			{Min: 3, Max: 10, Type: ChargePercentage, Percentage: 5},
		},
		DefaultQuantityCharge: 90,
	}

	// First band: fixed.
	got := calc.ShippingCharges(cfg, "", []Item{
		{ProductID: 1, Quantity: 2, UnitPrice: 1000, UseDefaultShipping: true},
	})
	require.InDelta(t, 120.0, got, 0.001)

	// Second band: percentage of line value.
	got = calc.ShippingCharges(cfg, "", []Item{
		{ProductID: 1, Quantity: 4, UnitPrice: 1000, UseDefaultShipping: true},
	})
	require.InDelta(t, 1000*4*0.05, got, 0.001)

	// Outside every band: tenant default.
	got = calc.ShippingCharges(cfg, "", []Item{
		{ProductID: 1, Quantity: 20, UnitPrice: 1000, UseDefaultShipping: true},
	})
	require.InDelta(t, 90.0, got, 0.001)
}

func TestShippingChargesProductOverrides(t *testing.T) {
	calc := NewCalculator(nil)
	cfg := TenantConfig{
		QuantityRules:         []Rule{{Min: 1, Max: 100, Type: ChargeFixed, Fee: 500}},
		DefaultQuantityCharge: 500,
	}

	got := calc.ShippingCharges(cfg, "", []Item{
		{
			ProductID:             7,
			Quantity:              2,
			UseDefaultShipping:    false,
			QuantityRules:         []byte(`[{"min":1,"max":5,"type":"FIXED","fee":60}]`),
			DefaultQuantityCharge: 40,
		},
	})
	require.InDelta(t, 60.0, got, 0.001)

	// Product opted out with no rules of its own: product default applies.
	got = calc.ShippingCharges(cfg, "", []Item{
		{ProductID: 7, Quantity: 2, UseDefaultShipping: false, DefaultQuantityCharge: 40},
	})
	require.InDelta(t, 40.0, got, 0.001)

	// Broken rule JSON is treated as absent, not an error.
	got = calc.ShippingCharges(cfg, "", []Item{
		{ProductID: 7, Quantity: 2, UseDefaultShipping: false, QuantityRules: []byte(`{oops`), DefaultQuantityCharge: 40},
	})
	require.InDelta(t, 40.0, got, 0.001)
}

func TestCodFeeFixedAndPercentage(t *testing.T) {
	calc := NewCalculator(nil)

	fee := calc.CodFee(LogisticsCompany{FeeType: CodFixed, FlatFee: 75}, 5000)
	require.InDelta(t, 75.0, fee, 0.001)

	fee = calc.CodFee(LogisticsCompany{FeeType: CodPercentage, Percentage: 2.5}, 4000)
	require.InDelta(t, 100.0, fee, 0.001)

	fee = calc.CodFee(LogisticsCompany{FeeType: "UNKNOWN"}, 4000)
	require.Zero(t, fee)
}

func TestCodFeeRangeBased(t *testing.T) {
	calc := NewCalculator(nil)
	company := LogisticsCompany{
		ID:      3,
		FeeType: CodRangeBased,
		Rules:   []byte(`[{"min":0,"max":500,"type":"FIXED","fee":50},{"min":501,"max":5000,"type":"PERCENTAGE","percentage":2}]`),
	}

	require.InDelta(t, 50.0, calc.CodFee(company, 212), 0.001)
	require.InDelta(t, 1200*0.02, calc.CodFee(company, 1200), 0.001)

	// No band covers the amount: resolves to zero.
	require.Zero(t, calc.CodFee(company, 9999))
}
