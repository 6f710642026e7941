package shipping

import (
	"encoding/json"
	"log/slog"

	"golang.org/x/text/cases"
)

// ChargeType selects how a matched rule prices its band.
type ChargeType string

const (
	ChargeFixed      ChargeType = "FIXED"
	ChargePercentage ChargeType = "PERCENTAGE"
)

// CodFeeType selects the logistics company's COD pricing scheme.
type CodFeeType string

const (
	CodFixed      CodFeeType = "FIXED"
	CodPercentage CodFeeType = "PERCENTAGE"
	CodRangeBased CodFeeType = "RANGE_BASED"
)

// Rule is one band of a range-based charge table. Bounds are inclusive.
type Rule struct {
	Min        float64    `json:"min"`
	Max        float64    `json:"max"`
	Type       ChargeType `json:"type"`
	Fee        float64    `json:"fee"`
	Percentage float64    `json:"percentage"`
}

// TenantConfig carries the tenant-level shipping defaults.
type TenantConfig struct {
	CityCharges           map[string]float64 `json:"cityCharges"`
	DefaultCityCharge     float64            `json:"defaultCityCharge"`
	QuantityRules         []Rule             `json:"quantityRules"`
	DefaultQuantityCharge float64            `json:"defaultQuantityCharge"`
}

// Item is one product line of an order as the calculator sees it.
type Item struct {
	ProductID             int64
	Quantity              int64
	UnitPrice             float64
	UseDefaultShipping    bool
	QuantityRules         []byte
	DefaultQuantityCharge float64
}

// LogisticsCompany carries the COD fee configuration of one courier.
type LogisticsCompany struct {
	ID         int64
	Name       string
	FeeType    CodFeeType
	FlatFee    float64
	Percentage float64
	Rules      []byte
}

// Calculator computes shipping and COD charges. It is stateless; the
// logger only surfaces configuration gaps that resolve to zero.
type Calculator struct {
	logger *slog.Logger
}

// NewCalculator builds a calculator. A nil logger disables gap warnings.
func NewCalculator(logger *slog.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// ShippingCharges returns the order's shipping total: the city charge
// once per order plus one quantity charge per item. Missing or unmatched
// configuration contributes 0 rather than failing the order.
func (c *Calculator) ShippingCharges(cfg TenantConfig, city string, items []Item) float64 {
	total := c.cityCharge(cfg, city)
	for _, item := range items {
		total += c.quantityCharge(cfg, item)
	}
	if total < 0 {
		return 0
	}
	return total
}

func (c *Calculator) cityCharge(cfg TenantConfig, city string) float64 {
	if charge, ok := cfg.CityCharges[city]; ok {
		return charge
	}
	// City names arrive user-typed; retry with case folding before
	// falling back to the tenant default.
	fold := cases.Fold()
	folded := fold.String(city)
	for name, charge := range cfg.CityCharges {
		if fold.String(name) == folded {
			return charge
		}
	}
	return cfg.DefaultCityCharge
}

func (c *Calculator) quantityCharge(cfg TenantConfig, item Item) float64 {
	rules := cfg.QuantityRules
	fallback := cfg.DefaultQuantityCharge
	if !item.UseDefaultShipping {
		rules = c.parseRules(item.QuantityRules, "product", item.ProductID)
		fallback = item.DefaultQuantityCharge
	}
	qty := float64(item.Quantity)
	for _, rule := range rules {
		if qty < rule.Min || qty > rule.Max {
			continue
		}
		switch rule.Type {
		case ChargeFixed:
			return rule.Fee
		case ChargePercentage:
			return item.UnitPrice * qty * rule.Percentage / 100
		}
	}
	return fallback
}

// CodFee returns the courier's collection fee for the given COD amount.
// A range table with no matching band resolves to 0 and logs the gap.
func (c *Calculator) CodFee(company LogisticsCompany, codAmount float64) float64 {
	switch company.FeeType {
	case CodFixed:
		return company.FlatFee
	case CodPercentage:
		return codAmount * company.Percentage / 100
	case CodRangeBased:
		rules := c.parseRules(company.Rules, "logistics_company", company.ID)
		for _, rule := range rules {
			if codAmount < rule.Min || codAmount > rule.Max {
				continue
			}
			if rule.Type == ChargePercentage {
				return codAmount * rule.Percentage / 100
			}
			return rule.Fee
		}
		c.warnGap("no COD range matched", company.ID, codAmount)
		return 0
	default:
		return 0
	}
}

func (c *Calculator) parseRules(raw []byte, owner string, ownerID int64) []Rule {
	if len(raw) == 0 {
		return nil
	}
	var rules []Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		if c.logger != nil {
			c.logger.Warn("unparseable charge rules, treating as absent",
				slog.String("owner", owner),
				slog.Int64("owner_id", ownerID),
				slog.Any("error", err))
		}
		return nil
	}
	return rules
}

func (c *Calculator) warnGap(msg string, companyID int64, amount float64) {
	if c.logger != nil {
		c.logger.Warn(msg,
			slog.Int64("logistics_company_id", companyID),
			slog.Float64("cod_amount", amount))
	}
}
