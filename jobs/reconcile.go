package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hisaab-erp/hisaab-erp/internal/balance"
	"github.com/hisaab-erp/hisaab-erp/internal/returns"
	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// StatsPort recomputes per-partner rollups.
type StatsPort interface {
	RecalculateCustomerStats(ctx context.Context, tenant shared.TenantID, customerID int64) (balance.CustomerStats, error)
	RecalculateSupplierStats(ctx context.Context, tenant shared.TenantID, supplierID int64) (balance.SupplierStats, error)
}

// DriftPort reports payable drift per purchase invoice.
type DriftPort interface {
	CheckInvoiceDrift(ctx context.Context, tenant shared.TenantID, invoiceID int64) (returns.DriftReport, error)
}

// DirectoryPort enumerates the rows a reconciliation run visits.
type DirectoryPort interface {
	ListTenants(ctx context.Context) ([]shared.TenantID, error)
	ListCustomerIDs(ctx context.Context, tenant shared.TenantID) ([]int64, error)
	ListSupplierIDs(ctx context.Context, tenant shared.TenantID) ([]int64, error)
	ListInvoiceIDs(ctx context.Context, tenant shared.TenantID) ([]int64, error)
}

// JobRecorder counts job outcomes.
type JobRecorder interface {
	RecordJob(task string, err error)
}

// Reconciler runs the scheduled reconciliation tasks. The scans only
// report; they never correct balances on their own.
type Reconciler struct {
	dir     DirectoryPort
	stats   StatsPort
	drift   DriftPort
	metrics JobRecorder
	logger  *slog.Logger
}

// NewReconciler builds the reconciliation task handlers.
func NewReconciler(dir DirectoryPort, stats StatsPort, drift DriftPort, metrics JobRecorder, logger *slog.Logger) *Reconciler {
	return &Reconciler{dir: dir, stats: stats, drift: drift, metrics: metrics, logger: logger}
}

// HandlePartnerStats recomputes every customer and supplier rollup in
// scope. Per-partner failures are logged and the run continues.
func (r *Reconciler) HandlePartnerStats(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if r.logger != nil {
		r.logger.Info("partner stats reconciliation started",
			slog.String("run_id", payload.RunID),
			slog.Int64("tenant_id", payload.TenantID))
	}
	err := r.forEachTenant(ctx, payload.TenantID, r.recomputeTenantStats)
	if r.metrics != nil {
		r.metrics.RecordJob(TaskPartnerStats, err)
	}
	return err
}

func (r *Reconciler) recomputeTenantStats(ctx context.Context, tenant shared.TenantID) error {
	customers, err := r.dir.ListCustomerIDs(ctx, tenant)
	if err != nil {
		return err
	}
	for _, id := range customers {
		if _, err := r.stats.RecalculateCustomerStats(ctx, tenant, id); err != nil {
			r.warn("customer stats recompute failed", tenant, id, err)
		}
	}
	suppliers, err := r.dir.ListSupplierIDs(ctx, tenant)
	if err != nil {
		return err
	}
	for _, id := range suppliers {
		if _, err := r.stats.RecalculateSupplierStats(ctx, tenant, id); err != nil {
			r.warn("supplier stats recompute failed", tenant, id, err)
		}
	}
	return nil
}

// HandleDriftScan checks every live purchase invoice for payable drift.
// Drifting invoices are logged by the drift check itself; the scan adds
// a per-tenant summary.
func (r *Reconciler) HandleDriftScan(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if r.logger != nil {
		r.logger.Info("payable drift scan started",
			slog.String("run_id", payload.RunID),
			slog.Int64("tenant_id", payload.TenantID))
	}
	err := r.forEachTenant(ctx, payload.TenantID, r.scanTenantDrift)
	if r.metrics != nil {
		r.metrics.RecordJob(TaskDriftScan, err)
	}
	return err
}

func (r *Reconciler) scanTenantDrift(ctx context.Context, tenant shared.TenantID) error {
	invoices, err := r.dir.ListInvoiceIDs(ctx, tenant)
	if err != nil {
		return err
	}
	var drifting int
	for _, id := range invoices {
		report, err := r.drift.CheckInvoiceDrift(ctx, tenant, id)
		if err != nil {
			r.warn("drift check failed", tenant, id, err)
			continue
		}
		if math.Abs(report.Drift) > 0.01 {
			drifting++
		}
	}
	if r.logger != nil {
		r.logger.Info("payable drift scan finished",
			slog.Int64("tenant_id", int64(tenant)),
			slog.Int("invoices", len(invoices)),
			slog.Int("drifting", drifting))
	}
	return nil
}

// forEachTenant runs fn for the payload tenant, or for every known
// tenant when no tenant was given.
func (r *Reconciler) forEachTenant(ctx context.Context, tenantID int64, fn func(context.Context, shared.TenantID) error) error {
	if tenantID > 0 {
		return fn(ctx, shared.TenantID(tenantID))
	}
	tenants, err := r.dir.ListTenants(ctx)
	if err != nil {
		return err
	}
	for _, tenant := range tenants {
		if err := fn(ctx, tenant); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) warn(msg string, tenant shared.TenantID, id int64, err error) {
	if r.logger != nil {
		r.logger.Warn(msg,
			slog.Int64("tenant_id", int64(tenant)),
			slog.Int64("id", id),
			slog.Any("error", err))
	}
}

// Directory is the pgx-backed DirectoryPort.
type Directory struct {
	db *pgxpool.Pool
}

// NewDirectory builds the directory over the shared pool.
func NewDirectory(db *pgxpool.Pool) *Directory {
	return &Directory{db: db}
}

func (d *Directory) ListTenants(ctx context.Context) ([]shared.TenantID, error) {
	rows, err := d.db.Query(ctx, `SELECT DISTINCT tenant_id FROM customers UNION SELECT DISTINCT tenant_id FROM suppliers ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tenants []shared.TenantID
	for rows.Next() {
		var tenant shared.TenantID
		if err := rows.Scan(&tenant); err != nil {
			return nil, err
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}

const (
	customerIDsQuery = `SELECT id FROM customers WHERE tenant_id=$1 ORDER BY id`
	supplierIDsQuery = `SELECT id FROM suppliers WHERE tenant_id=$1 ORDER BY id`
	// Invoice deletion removes the row outright, so every remaining row
	// is live.
	invoiceIDsQuery = `SELECT id FROM purchase_invoices WHERE tenant_id=$1 ORDER BY id`
)

func (d *Directory) ListCustomerIDs(ctx context.Context, tenant shared.TenantID) ([]int64, error) {
	return d.listIDs(ctx, customerIDsQuery, tenant)
}

func (d *Directory) ListSupplierIDs(ctx context.Context, tenant shared.TenantID) ([]int64, error) {
	return d.listIDs(ctx, supplierIDsQuery, tenant)
}

func (d *Directory) ListInvoiceIDs(ctx context.Context, tenant shared.TenantID) ([]int64, error) {
	return d.listIDs(ctx, invoiceIDsQuery, tenant)
}

func (d *Directory) listIDs(ctx context.Context, query string, tenant shared.TenantID) ([]int64, error) {
	rows, err := d.db.Query(ctx, query, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
