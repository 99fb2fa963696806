package goodsreceipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/docnum"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RefType tags ledger entries written by this workflow.
const RefType = "GRN"

// DocType keys the numbering sequence.
const DocType = "GRN"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (GoodsReceipt, error)
	List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the goods receipt workflow.
type Service struct {
	repo        RepositoryPort
	ledger      *ledger.Service
	batches     *batch.Service
	products    masterdata.ProductCatalog
	locations   masterdata.LocationRegistry
	suppliers   masterdata.SupplierRegistry
	numbers     docnum.Source
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService constructs the goods receipt service.
func NewService(repo RepositoryPort, led *ledger.Service, batches *batch.Service, products masterdata.ProductCatalog, locations masterdata.LocationRegistry, suppliers masterdata.SupplierRegistry, numbers docnum.Source, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		repo:        repo,
		ledger:      led,
		batches:     batches,
		products:    products,
		locations:   locations,
		suppliers:   suppliers,
		numbers:     numbers,
		audit:       audit,
		idempotency: idem,
		now:         time.Now,
	}
}

// CreateInput describes a new goods receipt.
type CreateInput struct {
	SupplierID int64
	LocationID int64
	ReceivedAt time.Time
	Note       string
	Lines      []LineInput
}

// LineInput describes one received line.
type LineInput struct {
	ProductID int64
	Qty       decimal.Decimal
	Unit      string
	UnitCost  decimal.Decimal
	BatchNo   string
	Expiry    *time.Time
}

// ListFilter bounds List queries.
type ListFilter struct {
	Status     Status
	SupplierID int64
	LocationID int64
	From       time.Time
	To         time.Time
	Search     string
	Pagination shared.Pagination
}

// Create validates references and persists a draft receipt with a generated
// number.
func (s *Service) Create(ctx context.Context, input CreateInput, actorID int64) (GoodsReceipt, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return GoodsReceipt{}, err
	}
	number, err := s.numbers.Next(ctx, DocType)
	if err != nil {
		return GoodsReceipt{}, err
	}
	now := s.now().UTC()
	doc := GoodsReceipt{
		Number:     number,
		SupplierID: input.SupplierID,
		LocationID: input.LocationID,
		Status:     StatusDraft,
		ReceivedAt: defaultTime(input.ReceivedAt, now),
		Note:       input.Note,
		RefID:      uuid.New(),
		CreatedBy:  actorID,
		CreatedAt:  now,
		UpdatedBy:  actorID,
		UpdatedAt:  now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertHeader(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		for _, line := range input.Lines {
			l := Line{
				ReceiptID: id,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				Unit:      line.Unit,
				UnitCost:  line.UnitCost,
				BatchNo:   strings.TrimSpace(line.BatchNo),
				Expiry:    line.Expiry,
			}
			if err := tx.InsertLine(ctx, l); err != nil {
				return err
			}
			doc.Lines = append(doc.Lines, l)
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actorID, "GRN_CREATE", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Update replaces header fields and lines of a draft receipt.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput, actorID int64) (GoodsReceipt, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return GoodsReceipt{}, err
	}
	var updated GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.Status.CanEdit() {
			return ErrInvalidState
		}
		now := s.now().UTC()
		doc.SupplierID = input.SupplierID
		doc.LocationID = input.LocationID
		doc.ReceivedAt = defaultTime(input.ReceivedAt, doc.ReceivedAt)
		doc.Note = input.Note
		doc.UpdatedBy = actorID
		doc.UpdatedAt = now
		if err := tx.UpdateHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		doc.Lines = nil
		for _, line := range input.Lines {
			l := Line{
				ReceiptID: id,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				Unit:      line.Unit,
				UnitCost:  line.UnitCost,
				BatchNo:   strings.TrimSpace(line.BatchNo),
				Expiry:    line.Expiry,
			}
			if err := tx.InsertLine(ctx, l); err != nil {
				return err
			}
			doc.Lines = append(doc.Lines, l)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actorID, "GRN_UPDATE", id, map[string]any{"number": updated.Number})
	return updated, nil
}

// Post transitions the receipt to POSTED and appends one inbound ledger entry
// per line inside the same transaction. Lines carrying a batch number credit
// the matching product batch, creating it on first receipt.
func (s *Service) Post(ctx context.Context, id int64, actorID int64) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if !doc.Status.CanPost() {
		return ErrInvalidState
	}
	key := fmt.Sprintf("GRN:%s", doc.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "goodsreceipt"); err != nil {
			return err
		}
		inserted = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !locked.Status.CanPost() {
			return ErrInvalidState
		}
		now := s.now().UTC()
		if err := tx.SetStatus(ctx, id, StatusPosted, actorID, now); err != nil {
			return err
		}
		for _, line := range locked.Lines {
			if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
				ProductID:    line.ProductID,
				LocationID:   locked.LocationID,
				MovementType: ledger.MovementReceipt,
				Qty:          line.Qty,
				UnitCost:     line.UnitCost,
				RefType:      RefType,
				RefID:        locked.RefID,
				ActorID:      actorID,
			}); err != nil {
				return err
			}
			if line.BatchNo == "" {
				continue
			}
			if _, err := s.batches.ReceiveIn(ctx, tx, batch.CreateInput{
				ProductID: line.ProductID,
				BatchNo:   line.BatchNo,
				Quantity:  line.Qty,
				Unit:      line.Unit,
				Expiry:    line.Expiry,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	s.recordAudit(ctx, actorID, "GRN_POST", id, map[string]any{"number": doc.Number})
	return nil
}

// Cancel voids the receipt. Cancelling a draft only flips status; cancelling a
// posted receipt appends a compensating ledger entry for every original entry
// under the same reference and debits the batches it credited.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		number = doc.Number
		if doc.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		if !doc.Status.CanCancel() {
			return ErrInvalidState
		}
		now := s.now().UTC()
		if doc.Status == StatusPosted {
			entries, err := tx.GetByReference(ctx, RefType, doc.RefID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
					ProductID:    e.ProductID,
					LocationID:   e.LocationID,
					MovementType: e.MovementType.Compensating(),
					Qty:          e.Qty.Neg(),
					UnitCost:     e.UnitCost,
					RefType:      RefType,
					RefID:        doc.RefID,
					ActorID:      actorID,
				}); err != nil {
					return err
				}
			}
			for _, line := range doc.Lines {
				if line.BatchNo == "" {
					continue
				}
				if _, err := s.batches.DrawIn(ctx, tx, line.ProductID, line.BatchNo, line.Qty); err != nil {
					return err
				}
			}
		}
		return tx.SetStatus(ctx, id, StatusCancelled, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRN_CANCEL", id, map[string]any{"number": number})
	return nil
}

// Delete soft-deletes a draft receipt.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.Status.CanDelete() {
			return ErrInvalidState
		}
		return tx.SoftDelete(ctx, id, actorID, s.now().UTC())
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GRN_DELETE", id, nil)
	return nil
}

// Get returns one receipt with lines.
func (s *Service) Get(ctx context.Context, id int64) (GoodsReceipt, error) {
	return s.repo.Get(ctx, id)
}

// List returns receipts matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) validateInput(ctx context.Context, input CreateInput) error {
	if input.SupplierID == 0 || input.LocationID == 0 {
		return ErrValidation
	}
	if len(input.Lines) == 0 {
		return ErrValidation
	}
	ok, err := s.suppliers.SupplierExists(ctx, input.SupplierID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: supplier %d", masterdata.ErrUnknownReference, input.SupplierID)
	}
	ok, err = s.locations.LocationExists(ctx, input.LocationID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: location %d", masterdata.ErrUnknownReference, input.LocationID)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty.Sign() <= 0 {
			return ErrValidation
		}
		if line.UnitCost.IsNegative() {
			return ErrValidation
		}
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, masterdata.ErrUnknownReference) {
				return fmt.Errorf("%w: product %d", masterdata.ErrUnknownReference, line.ProductID)
			}
			return err
		}
		if product.BatchTracked && strings.TrimSpace(line.BatchNo) == "" {
			return fmt.Errorf("%w: product %d requires a batch number", ErrValidation, line.ProductID)
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "goods_receipt", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func defaultTime(value, fallback time.Time) time.Time {
	if value.IsZero() {
		return fallback
	}
	return value
}
