package adjustment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/docnum"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RefType tags ledger entries written by this workflow.
const RefType = "ADJ"

// DocType keys the numbering sequence.
const DocType = "ADJ"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Adjustment, error)
	List(ctx context.Context, filter ListFilter) ([]Adjustment, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records approval history, reused from shared.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service orchestrates the stock adjustment workflow.
type Service struct {
	repo        RepositoryPort
	ledger      *ledger.Service
	products    masterdata.ProductCatalog
	locations   masterdata.LocationRegistry
	numbers     docnum.Source
	approvals   ApprovalPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService constructs the adjustment service.
func NewService(repo RepositoryPort, led *ledger.Service, products masterdata.ProductCatalog, locations masterdata.LocationRegistry, numbers docnum.Source, approvals ApprovalPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		repo:        repo,
		ledger:      led,
		products:    products,
		locations:   locations,
		numbers:     numbers,
		approvals:   approvals,
		audit:       audit,
		idempotency: idem,
		now:         time.Now,
	}
}

// CreateInput describes a new adjustment.
type CreateInput struct {
	LocationID int64
	ReasonCode string
	Note       string
	Lines      []LineInput
}

// LineInput describes one signed correction.
type LineInput struct {
	ProductID int64
	Qty       decimal.Decimal
	Unit      string
	UnitCost  decimal.Decimal
	Note      string
}

// ListFilter bounds List queries.
type ListFilter struct {
	Status     Status
	LocationID int64
	ReasonCode string
	Search     string
	Pagination shared.Pagination
}

// Create validates references and persists a draft adjustment.
func (s *Service) Create(ctx context.Context, input CreateInput, actorID int64) (Adjustment, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return Adjustment{}, err
	}
	number, err := s.numbers.Next(ctx, DocType)
	if err != nil {
		return Adjustment{}, err
	}
	now := s.now().UTC()
	doc := Adjustment{
		Number:     number,
		LocationID: input.LocationID,
		ReasonCode: strings.TrimSpace(input.ReasonCode),
		Status:     StatusDraft,
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
				AdjustmentID: id,
				ProductID:    line.ProductID,
				Qty:          line.Qty,
				Unit:         line.Unit,
				UnitCost:     line.UnitCost,
				Note:         line.Note,
			}
			if err := tx.InsertLine(ctx, l); err != nil {
				return err
			}
			doc.Lines = append(doc.Lines, l)
		}
		return nil
	})
	if err != nil {
		return Adjustment{}, err
	}
	s.recordAudit(ctx, actorID, "ADJ_CREATE", doc.ID, map[string]any{"number": doc.Number, "reason": doc.ReasonCode})
	return doc, nil
}

// Update replaces header fields and lines of a draft adjustment.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput, actorID int64) (Adjustment, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return Adjustment{}, err
	}
	var updated Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.Status.CanEdit() {
			return ErrInvalidState
		}
		doc.LocationID = input.LocationID
		doc.ReasonCode = strings.TrimSpace(input.ReasonCode)
		doc.Note = input.Note
		doc.UpdatedBy = actorID
		doc.UpdatedAt = s.now().UTC()
		if err := tx.UpdateHeader(ctx, doc); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		doc.Lines = nil
		for _, line := range input.Lines {
			l := Line{
				AdjustmentID: id,
				ProductID:    line.ProductID,
				Qty:          line.Qty,
				Unit:         line.Unit,
				UnitCost:     line.UnitCost,
				Note:         line.Note,
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
		return Adjustment{}, err
	}
	s.recordAudit(ctx, actorID, "ADJ_UPDATE", id, map[string]any{"number": updated.Number})
	return updated, nil
}

// Approve transitions the adjustment to APPROVED and appends one signed
// ledger entry per line. The approval itself is written to the approval
// history. An unapproved adjustment never moves stock.
func (s *Service) Approve(ctx context.Context, id int64, actorID int64, note string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if !doc.Status.CanApprove() {
		return ErrInvalidState
	}
	key := fmt.Sprintf("ADJ:%s", doc.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "adjustment"); err != nil {
			return err
		}
		inserted = true
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !locked.Status.CanApprove() {
			return ErrInvalidState
		}
		now := s.now().UTC()
		if err := tx.SetApproved(ctx, id, actorID, now); err != nil {
			return err
		}
		for _, line := range locked.Lines {
			if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
				ProductID:    line.ProductID,
				LocationID:   locked.LocationID,
				MovementType: line.MovementType(),
				Qty:          line.Qty,
				UnitCost:     line.UnitCost,
				RefType:      RefType,
				RefID:        locked.RefID,
				ActorID:      actorID,
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
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			DocType: DocType,
			DocID:   id,
			ActorID: actorID,
			Action:  shared.ApprovalApprove,
			Note:    defaultString(note, fmt.Sprintf("adjustment %s approved", doc.Number)),
		})
	}
	s.recordAudit(ctx, actorID, "ADJ_APPROVE", id, map[string]any{"number": doc.Number})
	return nil
}

// Reject refuses a draft adjustment. The document is cancelled with no ledger
// effect and the rejection is written to the approval history.
func (s *Service) Reject(ctx context.Context, id int64, actorID int64, note string) error {
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
		if !doc.Status.CanApprove() {
			return ErrInvalidState
		}
		return tx.SetStatus(ctx, id, StatusCancelled, actorID, s.now().UTC())
	})
	if err != nil {
		return err
	}
	if s.approvals != nil {
		_ = s.approvals.Record(ctx, shared.ApprovalLog{
			DocType: DocType,
			DocID:   id,
			ActorID: actorID,
			Action:  shared.ApprovalReject,
			Note:    defaultString(note, fmt.Sprintf("adjustment %s rejected", number)),
		})
	}
	s.recordAudit(ctx, actorID, "ADJ_REJECT", id, map[string]any{"number": number})
	return nil
}

// Cancel voids the adjustment. Cancelling an approved adjustment appends a
// compensating entry for every original entry under the same reference.
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
		if doc.Status == StatusApproved {
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
		}
		return tx.SetStatus(ctx, id, StatusCancelled, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ADJ_CANCEL", id, map[string]any{"number": number})
	return nil
}

// Delete soft-deletes a draft adjustment.
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
	s.recordAudit(ctx, actorID, "ADJ_DELETE", id, nil)
	return nil
}

// Get returns one adjustment with lines.
func (s *Service) Get(ctx context.Context, id int64) (Adjustment, error) {
	return s.repo.Get(ctx, id)
}

// List returns adjustments matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Adjustment, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) validateInput(ctx context.Context, input CreateInput) error {
	if input.LocationID == 0 {
		return ErrValidation
	}
	if strings.TrimSpace(input.ReasonCode) == "" {
		return ErrReasonRequired
	}
	if len(input.Lines) == 0 {
		return ErrValidation
	}
	ok, err := s.locations.LocationExists(ctx, input.LocationID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: location %d", masterdata.ErrUnknownReference, input.LocationID)
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty.IsZero() {
			return ErrValidation
		}
		if line.UnitCost.IsNegative() {
			return ErrValidation
		}
		if _, err := s.products.GetProduct(ctx, line.ProductID); err != nil {
			if errors.Is(err, masterdata.ErrUnknownReference) {
				return fmt.Errorf("%w: product %d", masterdata.ErrUnknownReference, line.ProductID)
			}
			return err
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "stock_adjustment", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
