package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hisaab-erp/hisaab-erp/internal/shared"
)

// AuditPort records inventory activity into the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DriftRecorder counts decrements that were clamped at zero. Clamping is
// kept from the source contract; the counter makes the lost quantity
// visible instead of silent.
type DriftRecorder interface {
	RecordClampedDecrement()
}

// Service coordinates inventory reconciliation.
type Service struct {
	repo   Repository
	audit  AuditPort
	drift  DriftRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the inventory service.
func NewService(repo Repository, audit AuditPort, drift DriftRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, drift: drift, logger: logger, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetProduct fetches one product scoped to the tenant.
func (s *Service) GetProduct(ctx context.Context, tenant shared.TenantID, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, tenant, id)
}

// History lists the product's audit log, newest first.
func (s *Service) History(ctx context.Context, tenant shared.TenantID, productID int64, limit int) ([]ProductLog, error) {
	return s.repo.ListLogs(ctx, tenant, productID, limit)
}

// ListBelowMinStock returns products under their minimum stock level.
func (s *Service) ListBelowMinStock(ctx context.Context, tenant shared.TenantID) ([]Product, error) {
	return s.repo.ListBelowMinStock(ctx, tenant)
}

// AppliedItem reports which product (and variant) a purchase line
// resolved to.
type AppliedItem struct {
	ProductID int64
	VariantID *int64
}

// UpdateFromPurchase applies purchase-invoice items to stock: products and
// variants are resolved or created by name within the tenant, quantities
// increase, and the last purchase price is refreshed. Purchases only add.
// The caller guarantees at-most-once invocation per invoice; this
// operation does not deduplicate by invoice id.
func (s *Service) UpdateFromPurchase(ctx context.Context, tenant shared.TenantID, items []PurchaseItemInput, invoiceID int64, invoiceNumber string) ([]AppliedItem, error) {
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if item.ProductName == "" {
			return nil, fmt.Errorf("inventory: product name required")
		}
	}
	reference := fmt.Sprintf("Purchase Invoice: %s", invoiceNumber)
	applied := make([]AppliedItem, 0, len(items))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		applied = applied[:0]
		for _, item := range items {
			product, created, err := s.resolveProduct(ctx, tx, tenant, item)
			if err != nil {
				return err
			}
			oldQty := product.CurrentQuantity
			newQty := oldQty + item.Quantity
			if err := tx.SetProductQuantity(ctx, product.ID, newQty); err != nil {
				return err
			}
			if err := tx.SetProductPurchasePrice(ctx, product.ID, item.PurchasePrice); err != nil {
				return err
			}
			action := LogActionIncrease
			if created {
				action = LogActionCreate
			}
			if err := tx.InsertLog(ctx, ProductLog{
				TenantID:    tenant,
				ProductID:   product.ID,
				Action:      action,
				OldQuantity: oldQty,
				NewQuantity: newQty,
				OldPrice:    product.LastPurchasePrice,
				NewPrice:    item.PurchasePrice,
				Reason:      "Purchase",
				Reference:   reference,
			}); err != nil {
				return err
			}
			entry := AppliedItem{ProductID: product.ID}
			if item.Color != "" || item.Size != "" {
				variantID, err := s.applyVariantPurchase(ctx, tx, tenant, product.ID, item, reference)
				if err != nil {
					return err
				}
				entry.VariantID = variantID
			}
			applied = append(applied, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *Service) resolveProduct(ctx context.Context, tx TxRepository, tenant shared.TenantID, item PurchaseItemInput) (Product, bool, error) {
	product, err := tx.GetProductByNameForUpdate(ctx, tenant, item.ProductName)
	if err == nil {
		return product, false, nil
	}
	if err != ErrProductNotFound {
		return Product{}, false, err
	}
	product, err = tx.InsertProduct(ctx, tenant, item)
	if err != nil {
		return Product{}, false, err
	}
	return product, true, nil
}

func (s *Service) applyVariantPurchase(ctx context.Context, tx TxRepository, tenant shared.TenantID, productID int64, item PurchaseItemInput, reference string) (*int64, error) {
	variant, err := tx.GetVariantForUpdate(ctx, tenant, productID, item.Color, item.Size)
	action := LogActionVariantIncrease
	if err == ErrVariantNotFound {
		variant, err = tx.InsertVariant(ctx, tenant, productID, item)
		action = LogActionVariantCreate
	}
	if err != nil {
		return nil, err
	}
	oldQty := variant.CurrentQuantity
	newQty := oldQty + item.Quantity
	if err := tx.SetVariantQuantity(ctx, variant.ID, newQty); err != nil {
		return nil, err
	}
	return &variant.ID, tx.InsertLog(ctx, ProductLog{
		TenantID:    tenant,
		ProductID:   productID,
		VariantID:   &variant.ID,
		Action:      action,
		OldQuantity: oldQty,
		NewQuantity: newQty,
		Reason:      "Purchase",
		Reference:   reference,
	})
}

// DeletePurchaseInvoice reverses every non-deleted item of the invoice out
// of stock (clamped at zero), soft-deletes the items to keep the audit
// trail, then removes the invoice row. Safe to re-run: already-deleted
// items are excluded, so a retry reverses nothing twice.
func (s *Service) DeletePurchaseInvoice(ctx context.Context, tenant shared.TenantID, invoiceID int64, invoiceNumber string) error {
	reference := fmt.Sprintf("Invoice Deletion: %s", invoiceNumber)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.ListActiveItems(ctx, tenant, invoiceID)
		if err != nil {
			return err
		}
		for _, item := range items {
			product, err := tx.GetProductForUpdate(ctx, tenant, item.ProductID)
			if err != nil {
				return err
			}
			oldQty := product.CurrentQuantity
			newQty := clampQuantity(oldQty - item.Quantity)
			if lost := item.Quantity - (oldQty - newQty); lost > 0 {
				s.recordClamp(tenant, product.ID, lost, reference)
			}
			if err := tx.SetProductQuantity(ctx, product.ID, newQty); err != nil {
				return err
			}
			itemID := item.ID
			if err := tx.InsertLog(ctx, ProductLog{
				TenantID:       tenant,
				ProductID:      product.ID,
				PurchaseItemID: &itemID,
				Action:         LogActionDecrease,
				OldQuantity:    oldQty,
				NewQuantity:    newQty,
				Reason:         "Invoice deletion",
				Reference:      reference,
			}); err != nil {
				return err
			}
			if item.Color != "" || item.Size != "" {
				if err := s.reverseVariant(ctx, tx, tenant, item, reference); err != nil {
					return err
				}
			}
		}
		if err := tx.SoftDeleteItems(ctx, tenant, invoiceID, s.now()); err != nil {
			return err
		}
		return tx.DeleteInvoiceRow(ctx, tenant, invoiceID)
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   "inventory.invoice_delete",
			Entity:   "purchase_invoice",
			EntityID: invoiceNumber,
			Meta:     map[string]any{"invoice_id": invoiceID},
			At:       s.now(),
		})
	}
	return nil
}

func (s *Service) reverseVariant(ctx context.Context, tx TxRepository, tenant shared.TenantID, item PurchaseItem, reference string) error {
	variant, err := tx.GetVariantForUpdate(ctx, tenant, item.ProductID, item.Color, item.Size)
	if err == ErrVariantNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	oldQty := variant.CurrentQuantity
	newQty := clampQuantity(oldQty - item.Quantity)
	if err := tx.SetVariantQuantity(ctx, variant.ID, newQty); err != nil {
		return err
	}
	return tx.InsertLog(ctx, ProductLog{
		TenantID:    tenant,
		ProductID:   item.ProductID,
		VariantID:   &variant.ID,
		Action:      LogActionVariantDecrease,
		OldQuantity: oldQty,
		NewQuantity: newQty,
		Reason:      "Invoice deletion",
		Reference:   reference,
	})
}

// Adjust applies a manual quantity delta, clamped at zero. The clamp is
// the inherited contract: a decrement below zero resets to zero and the
// shortfall is logged, not raised.
func (s *Service) Adjust(ctx context.Context, tenant shared.TenantID, input AdjustInput) (Product, error) {
	if input.Delta == 0 {
		return Product{}, ErrZeroAdjustment
	}
	var adjusted Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProductForUpdate(ctx, tenant, input.ProductID)
		if err != nil {
			return err
		}
		oldQty := product.CurrentQuantity
		newQty := clampQuantity(oldQty + input.Delta)
		if input.Delta < 0 {
			if lost := -input.Delta - (oldQty - newQty); lost > 0 {
				s.recordClamp(tenant, product.ID, lost, input.Reason)
			}
		}
		if err := tx.SetProductQuantity(ctx, product.ID, newQty); err != nil {
			return err
		}
		action := LogActionIncrease
		if input.Delta < 0 {
			action = LogActionDecrease
		}
		if err := tx.InsertLog(ctx, ProductLog{
			TenantID:    tenant,
			ProductID:   product.ID,
			Action:      action,
			OldQuantity: oldQty,
			NewQuantity: newQty,
			OldPrice:    product.LastPurchasePrice,
			NewPrice:    product.LastPurchasePrice,
			Reason:      input.Reason,
			Notes:       input.Notes,
		}); err != nil {
			return err
		}
		adjusted = product
		adjusted.CurrentQuantity = newQty
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenant,
			Action:   "inventory.adjust",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", input.ProductID),
			Meta:     map[string]any{"delta": input.Delta, "reason": input.Reason},
			At:       s.now(),
		})
	}
	return adjusted, nil
}

func (s *Service) recordClamp(tenant shared.TenantID, productID, lost int64, reference string) {
	if s.drift != nil {
		s.drift.RecordClampedDecrement()
	}
	if s.logger != nil {
		s.logger.Warn("inventory decrement clamped at zero",
			slog.Int64("tenant_id", int64(tenant)),
			slog.Int64("product_id", productID),
			slog.Int64("lost_quantity", lost),
			slog.String("reference", reference))
	}
}

func clampQuantity(q int64) int64 {
	if q < 0 {
		return 0
	}
	return q
}
