package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
	"github.com/hisaab-erp/hisaab-erp/internal/shipping"
)

// Repository persists orders and loads the shipping configuration the
// calculator consumes.
type Repository interface {
	InsertOrder(ctx context.Context, tenant shared.TenantID, order Order) (Order, error)
	GetOrder(ctx context.Context, tenant shared.TenantID, id int64) (Order, error)
	GetShippingConfig(ctx context.Context, tenant shared.TenantID) (shipping.TenantConfig, error)
	GetProductShipping(ctx context.Context, tenant shared.TenantID, productID int64) (ProductShipping, error)
	GetLogisticsCompany(ctx context.Context, tenant shared.TenantID, id int64) (shipping.LogisticsCompany, error)
	InsertCustomerPayment(ctx context.Context, tenant shared.TenantID, customerID, orderID int64, amount float64, method string, date time.Time) (int64, error)
}

// ProductShipping is the slice of a product the calculator needs.
type ProductShipping struct {
	ProductID             int64
	UseDefaultShipping    bool
	QuantityRules         []byte
	DefaultQuantityCharge float64
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed orders repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) InsertOrder(ctx context.Context, tenant shared.TenantID, order Order) (Order, error) {
	var seq int64
	year := order.OrderDate.Year()
	if err := r.db.QueryRow(ctx, `INSERT INTO order_sequences (tenant_id, year, last_seq)
VALUES ($1,$2,1)
ON CONFLICT (tenant_id, year) DO UPDATE SET last_seq = order_sequences.last_seq + 1
RETURNING last_seq`, tenant, year).Scan(&seq); err != nil {
		return Order{}, err
	}
	order.Number = fmt.Sprintf("ORD-%d-%06d", year, seq)

	err := r.db.QueryRow(ctx, `INSERT INTO orders (tenant_id, customer_id, number, status, city, logistics_company_id, items_total, shipping_charges, cod_fee, cod_fee_paid_by, payment_amount, order_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id, created_at`,
		tenant, order.CustomerID, order.Number, order.Status, order.City, order.LogisticsCompanyID,
		order.ItemsTotal, order.ShippingCharges, order.CodFee, order.CodFeePaidBy, order.PaymentAmount, order.OrderDate).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		if err := r.db.QueryRow(ctx, `INSERT INTO order_items (tenant_id, order_id, product_id, quantity, unit_price)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			tenant, order.ID, order.Items[i].ProductID, order.Items[i].Quantity, order.Items[i].UnitPrice).
			Scan(&order.Items[i].ID); err != nil {
			return Order{}, err
		}
	}
	order.TenantID = tenant
	return order, nil
}

func (r *repository) GetOrder(ctx context.Context, tenant shared.TenantID, id int64) (Order, error) {
	var o Order
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, customer_id, number, status, city, logistics_company_id, items_total, shipping_charges, cod_fee, cod_fee_paid_by, payment_amount, order_date, created_at
FROM orders WHERE tenant_id=$1 AND id=$2`, tenant, id).
		Scan(&o.ID, &o.TenantID, &o.CustomerID, &o.Number, &o.Status, &o.City, &o.LogisticsCompanyID, &o.ItemsTotal, &o.ShippingCharges, &o.CodFee, &o.CodFeePaidBy, &o.PaymentAmount, &o.OrderDate, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, order_id, product_id, quantity, unit_price FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// GetShippingConfig reads the tenant-level charge tables. A tenant with
// no settings row gets zero-valued defaults, not an error.
func (r *repository) GetShippingConfig(ctx context.Context, tenant shared.TenantID) (shipping.TenantConfig, error) {
	var cityCharges, quantityRules []byte
	var cfg shipping.TenantConfig
	err := r.db.QueryRow(ctx, `SELECT city_charges, quantity_rules, default_city_charge, default_quantity_charge
FROM tenant_shipping_settings WHERE tenant_id=$1`, tenant).
		Scan(&cityCharges, &quantityRules, &cfg.DefaultCityCharge, &cfg.DefaultQuantityCharge)
	if errors.Is(err, pgx.ErrNoRows) {
		return shipping.TenantConfig{}, nil
	}
	if err != nil {
		return shipping.TenantConfig{}, err
	}
	if len(cityCharges) > 0 {
		if err := json.Unmarshal(cityCharges, &cfg.CityCharges); err != nil {
			return shipping.TenantConfig{}, err
		}
	}
	if len(quantityRules) > 0 {
		if err := json.Unmarshal(quantityRules, &cfg.QuantityRules); err != nil {
			return shipping.TenantConfig{}, err
		}
	}
	return cfg, nil
}

func (r *repository) GetProductShipping(ctx context.Context, tenant shared.TenantID, productID int64) (ProductShipping, error) {
	ps := ProductShipping{ProductID: productID, UseDefaultShipping: true}
	err := r.db.QueryRow(ctx, `SELECT use_default_shipping, shipping_rules, default_quantity_charge
FROM products WHERE tenant_id=$1 AND id=$2`, tenant, productID).
		Scan(&ps.UseDefaultShipping, &ps.QuantityRules, &ps.DefaultQuantityCharge)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown products fall back to tenant defaults.
		return ps, nil
	}
	if err != nil {
		return ProductShipping{}, err
	}
	return ps, nil
}

func (r *repository) GetLogisticsCompany(ctx context.Context, tenant shared.TenantID, id int64) (shipping.LogisticsCompany, error) {
	var company shipping.LogisticsCompany
	err := r.db.QueryRow(ctx, `SELECT id, name, cod_fee_type, cod_flat_fee, cod_percentage, cod_rules
FROM logistics_companies WHERE tenant_id=$1 AND id=$2`, tenant, id).
		Scan(&company.ID, &company.Name, &company.FeeType, &company.FlatFee, &company.Percentage, &company.Rules)
	if errors.Is(err, pgx.ErrNoRows) {
		return shipping.LogisticsCompany{}, ErrLogisticsNotFound
	}
	if err != nil {
		return shipping.LogisticsCompany{}, err
	}
	return company, nil
}

func (r *repository) InsertCustomerPayment(ctx context.Context, tenant shared.TenantID, customerID, orderID int64, amount float64, method string, date time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO payments (tenant_id, type, customer_id, order_id, amount, method, date)
VALUES ($1,'CUSTOMER_PAYMENT',$2,$3,$4,$5,$6) RETURNING id`, tenant, customerID, orderID, amount, method, date).Scan(&id)
	return id, err
}
