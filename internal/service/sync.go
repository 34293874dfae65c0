package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

// SyncClientData folds an offline batch into the ledger and returns the full
// client snapshot. Entries are applied best-effort: a failing entry is
// recorded in the manifest and never aborts the rest of the batch.
//
// With an idempotency key the first completed manifest is stored and replayed
// for repeats of the same key. Without a key a retried batch creates again.
func (s *Service) SyncClientData(ctx context.Context, payload domain.SyncPayload) (domain.SyncResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.SyncResponse{}, err
	}

	key := strings.TrimSpace(payload.IdempotencyKey)
	if key != "" {
		batch, err := s.repo.ReserveSyncBatch(ctx, domain.SyncBatch{ClientID: p.ClientID, IdempotencyKey: key, CreatedAt: s.now()})
		if errors.Is(err, store.ErrConflict) {
			if batch == nil || !batch.Completed || batch.Manifest == nil {
				return domain.SyncResponse{}, apperr.ErrSyncInProgress
			}
			snapshot, err := s.snapshot(ctx, p.ClientID)
			if err != nil {
				return domain.SyncResponse{}, err
			}
			return domain.SyncResponse{IdempotencyKey: key, Replayed: true, Manifest: *batch.Manifest, Snapshot: snapshot}, nil
		}
		if err != nil {
			return domain.SyncResponse{}, err
		}
	}

	manifest := s.applySync(ctx, p.ClientID, payload)

	// the batch is applied; record the outcome even if the caller went away
	ctx = context.WithoutCancel(ctx)
	if key != "" {
		if err := s.repo.CompleteSyncBatch(ctx, p.ClientID, key, manifest, s.now()); err != nil {
			s.logger.WarnContext(ctx, "sync batch completion failed, releasing key", "key", key, "error", err)
			if relErr := s.repo.ReleaseSyncBatch(ctx, p.ClientID, key); relErr != nil {
				s.logger.WarnContext(ctx, "sync batch release failed", "key", key, "error", relErr)
			}
		}
	}
	s.logAudit(ctx, p.ClientID, "sync_batch", "sync", key, fmt.Sprintf("items=%d/%d,invoices=%d/%d,payments=%d/%d",
		len(manifest.Items.Results)-manifest.Items.Counts.Failed, len(manifest.Items.Results),
		len(manifest.Invoices.Results)-manifest.Invoices.Counts.Failed, len(manifest.Invoices.Results),
		len(manifest.Payments.Results)-manifest.Payments.Counts.Failed, len(manifest.Payments.Results),
	))

	snapshot, err := s.snapshot(ctx, p.ClientID)
	if err != nil {
		return domain.SyncResponse{}, err
	}
	return domain.SyncResponse{IdempotencyKey: key, Manifest: manifest, Snapshot: snapshot}, nil
}

// applySync runs items, then invoices, then payments, so later entries can
// reference rows created earlier in the same batch by their local ids.
func (s *Service) applySync(ctx context.Context, clientID string, payload domain.SyncPayload) domain.SyncManifest {
	manifest := domain.NewSyncManifest()
	localItems := make(map[string]string)
	localInvoices := make(map[string]string)

	for i, req := range payload.Item.Create {
		result := domain.SyncOpResult{Op: domain.SyncOpCreate, Index: i, LocalID: req.LocalID}
		item, err := s.createItem(ctx, clientID, req)
		if err == nil && req.LocalID != "" {
			localItems[req.LocalID] = item.ID
		}
		manifest.Items.Record(s.outcome(ctx, result, itemID(item), err))
	}

	for i, req := range payload.Item.Update {
		id := resolveLocal(req.ID, localItems)
		result := domain.SyncOpResult{Op: domain.SyncOpUpdate, Index: i, ID: id}
		var item *domain.Item
		err := apperr.Validationf("update requires an item id")
		if id != "" {
			item, err = s.updateItem(ctx, clientID, id, req.ItemUpdateRequest)
		}
		manifest.Items.Record(s.outcome(ctx, result, itemID(item), err))
	}

	for i, raw := range payload.Item.Delete {
		id := resolveLocal(raw, localItems)
		result := domain.SyncOpResult{Op: domain.SyncOpDelete, Index: i, ID: id}
		var item *domain.Item
		err := apperr.Validationf("delete requires an item id")
		if id != "" {
			item, err = s.deleteItem(ctx, clientID, id)
		}
		manifest.Items.Record(s.outcome(ctx, result, itemID(item), err))
	}

	for i, req := range payload.Invoice.Create {
		result := domain.SyncOpResult{Op: domain.SyncOpCreate, Index: i, LocalID: req.LocalID}
		inv, err := s.generateInvoice(ctx, clientID, req, localItems)
		id := ""
		if err == nil {
			id = inv.ID
			if req.LocalID != "" {
				localInvoices[req.LocalID] = inv.ID
			}
		}
		manifest.Invoices.Record(s.outcome(ctx, result, id, err))
	}

	for i, req := range payload.Payment.Create {
		result := domain.SyncOpResult{Op: domain.SyncOpCreate, Index: i, LocalID: req.LocalID}
		resp, err := s.recordPayment(ctx, clientID, req, localInvoices)
		manifest.Payments.Record(s.outcome(ctx, result, resp.Payment.ID, err))
	}
	return manifest
}

func (s *Service) outcome(ctx context.Context, result domain.SyncOpResult, id string, err error) domain.SyncOpResult {
	if err != nil {
		result.Status = domain.SyncStatusFailed
		result.Code = apperr.CodeOf(err)
		result.Reason = apperr.Message(err)
		s.logger.DebugContext(ctx, "sync entry failed", "op", result.Op, "index", result.Index, "error", err)
		return result
	}
	result.Status = domain.SyncStatusApplied
	result.ID = id
	return result
}

func resolveLocal(id string, local map[string]string) string {
	id = strings.TrimSpace(id)
	if mapped, ok := local[id]; ok {
		return mapped
	}
	return id
}

func itemID(item *domain.Item) string {
	if item == nil {
		return ""
	}
	return item.ID
}

// Snapshot returns the caller's complete dataset, inactive rows included.
func (s *Service) Snapshot(ctx context.Context) (domain.ClientSnapshot, error) {
	p, err := principal(ctx)
	if err != nil {
		return domain.ClientSnapshot{}, err
	}
	return s.snapshot(ctx, p.ClientID)
}

func (s *Service) snapshot(ctx context.Context, clientID string) (domain.ClientSnapshot, error) {
	var snap domain.ClientSnapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		client, err := s.repo.GetClientByID(gctx, clientID)
		if err == nil {
			snap.Client = *client
		}
		return err
	})
	g.Go(func() (err error) {
		snap.ItemGroups, err = s.repo.ListItemGroups(gctx, clientID, true)
		return err
	})
	g.Go(func() (err error) {
		snap.Items, err = s.repo.ListItems(gctx, clientID, true)
		return err
	})
	g.Go(func() (err error) {
		snap.Customers, err = s.repo.ListCustomers(gctx, clientID)
		return err
	})
	g.Go(func() (err error) {
		snap.Invoices, err = s.repo.ListInvoices(gctx, clientID, domain.InvoiceFilter{})
		return err
	})
	g.Go(func() (err error) {
		snap.Payments, err = s.repo.ListPayments(gctx, clientID, domain.PaymentFilter{})
		return err
	})
	g.Go(func() (err error) {
		snap.PurchaseHistory, err = s.repo.ListPurchaseHistory(gctx, clientID, "")
		return err
	})
	g.Go(func() (err error) {
		snap.Dealers, err = s.repo.ListDealers(gctx, clientID, true)
		return err
	})

	if err := g.Wait(); err != nil {
		return domain.ClientSnapshot{}, err
	}
	return snap, nil
}
