package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/docnum"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RefType tags ledger entries written by this workflow.
const RefType = "TRF"

// DocType keys the numbering sequence.
const DocType = "TRF"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the stock transfer workflow.
type Service struct {
	repo        RepositoryPort
	ledger      *ledger.Service
	products    masterdata.ProductCatalog
	locations   masterdata.LocationRegistry
	numbers     docnum.Source
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	now         func() time.Time
}

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, led *ledger.Service, products masterdata.ProductCatalog, locations masterdata.LocationRegistry, numbers docnum.Source, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		repo:        repo,
		ledger:      led,
		products:    products,
		locations:   locations,
		numbers:     numbers,
		audit:       audit,
		idempotency: idem,
		now:         time.Now,
	}
}

// CreateInput describes a new transfer.
type CreateInput struct {
	SourceID int64
	DestID   int64
	Note     string
	Lines    []LineInput
}

// LineInput describes one transferred line.
type LineInput struct {
	ProductID int64
	Qty       decimal.Decimal
	Unit      string
}

// ReceiveInput reports receipt progress for one line.
type ReceiveInput struct {
	LineID   int64
	Received decimal.Decimal
	Damaged  decimal.Decimal
}

// ListFilter bounds List queries.
type ListFilter struct {
	Status     Status
	SourceID   int64
	DestID     int64
	Search     string
	Pagination shared.Pagination
}

// Create validates references and persists a draft transfer.
func (s *Service) Create(ctx context.Context, input CreateInput, actorID int64) (Transfer, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return Transfer{}, err
	}
	number, err := s.numbers.Next(ctx, DocType)
	if err != nil {
		return Transfer{}, err
	}
	now := s.now().UTC()
	doc := Transfer{
		Number:    number,
		SourceID:  input.SourceID,
		DestID:    input.DestID,
		Status:    StatusDraft,
		Note:      input.Note,
		RefID:     uuid.New(),
		CreatedBy: actorID,
		CreatedAt: now,
		UpdatedBy: actorID,
		UpdatedAt: now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertHeader(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		for _, line := range input.Lines {
			l := Line{
				TransferID: id,
				ProductID:  line.ProductID,
				Qty:        line.Qty,
				Unit:       line.Unit,
				Status:     LinePending,
			}
			lineID, err := tx.InsertLine(ctx, l)
			if err != nil {
				return err
			}
			l.ID = lineID
			doc.Lines = append(doc.Lines, l)
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actorID, "TRF_CREATE", doc.ID, map[string]any{"number": doc.Number})
	return doc, nil
}

// Update replaces header fields and lines of a draft transfer.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput, actorID int64) (Transfer, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return Transfer{}, err
	}
	var updated Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !doc.Status.CanEdit() {
			return ErrInvalidState
		}
		doc.SourceID = input.SourceID
		doc.DestID = input.DestID
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
			l := Line{TransferID: id, ProductID: line.ProductID, Qty: line.Qty, Unit: line.Unit, Status: LinePending}
			lineID, err := tx.InsertLine(ctx, l)
			if err != nil {
				return err
			}
			l.ID = lineID
			doc.Lines = append(doc.Lines, l)
		}
		updated = doc
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actorID, "TRF_UPDATE", id, map[string]any{"number": updated.Number})
	return updated, nil
}

// Post transitions the transfer to IN_TRANSIT and appends one outbound entry
// per line at the source. Stock leaves at the source's moving average; the
// cost is captured on the line so receipts book at the same value.
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
	key := fmt.Sprintf("TRF:%s", doc.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "transfer"); err != nil {
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
		if err := tx.SetStatus(ctx, id, StatusInTransit, actorID, now); err != nil {
			return err
		}
		for _, line := range locked.Lines {
			entry, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
				ProductID:    line.ProductID,
				LocationID:   locked.SourceID,
				MovementType: ledger.MovementTransferOut,
				Qty:          line.Qty.Neg(),
				RefType:      RefType,
				RefID:        locked.RefID,
				ActorID:      actorID,
			})
			if err != nil {
				return err
			}
			line.UnitCost = entry.UnitCost
			if err := tx.UpdateLine(ctx, line); err != nil {
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
	s.recordAudit(ctx, actorID, "TRF_POST", id, map[string]any{"number": doc.Number})
	return nil
}

// ReceiveItems records receipt progress per line. Received quantity enters
// destination stock as an inbound entry; damaged quantity is accounted on the
// line but never enters stock. The header completes once every line reaches a
// terminal state.
func (s *Service) ReceiveItems(ctx context.Context, id int64, receipts []ReceiveInput, actorID int64) (Transfer, error) {
	if len(receipts) == 0 {
		return Transfer{}, ErrValidation
	}
	var result Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		if !doc.Status.CanReceive() {
			return ErrInvalidState
		}
		lines := map[int64]*Line{}
		for i := range doc.Lines {
			lines[doc.Lines[i].ID] = &doc.Lines[i]
		}
		now := s.now().UTC()
		for _, rcv := range receipts {
			line, ok := lines[rcv.LineID]
			if !ok {
				return ErrLineNotFound
			}
			if rcv.Received.IsNegative() || rcv.Damaged.IsNegative() {
				return ErrValidation
			}
			if rcv.Received.IsZero() && rcv.Damaged.IsZero() {
				return ErrValidation
			}
			if rcv.Received.Add(rcv.Damaged).GreaterThan(line.Remaining()) {
				return ErrOverReceipt
			}
			if rcv.Received.IsPositive() {
				if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
					ProductID:    line.ProductID,
					LocationID:   doc.DestID,
					MovementType: ledger.MovementTransferIn,
					Qty:          rcv.Received,
					UnitCost:     line.UnitCost,
					RefType:      RefType,
					RefID:        doc.RefID,
					ActorID:      actorID,
				}); err != nil {
					return err
				}
			}
			line.ReceivedQty = line.ReceivedQty.Add(rcv.Received)
			line.DamagedQty = line.DamagedQty.Add(rcv.Damaged)
			line.Status = DeriveLineStatus(line.Qty, line.ReceivedQty, line.DamagedQty)
			if err := tx.UpdateLine(ctx, *line); err != nil {
				return err
			}
		}
		done := true
		for _, line := range doc.Lines {
			if !line.Status.Terminal() {
				done = false
				break
			}
		}
		if done {
			if err := tx.SetStatus(ctx, id, StatusCompleted, actorID, now); err != nil {
				return err
			}
			doc.Status = StatusCompleted
			doc.CompletedAt = &now
		}
		result = doc
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actorID, "TRF_RECEIVE", id, map[string]any{"number": result.Number, "status": string(result.Status)})
	return result, nil
}

// Cancel voids the transfer. After posting, every ledger entry written under
// the reference is compensated: outbound entries at the source are restored
// and any received quantity already booked at the destination is removed.
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
		if doc.Status != StatusDraft {
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
	s.recordAudit(ctx, actorID, "TRF_CANCEL", id, map[string]any{"number": number})
	return nil
}

// Delete soft-deletes a draft transfer.
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
	s.recordAudit(ctx, actorID, "TRF_DELETE", id, nil)
	return nil
}

// Get returns one transfer with lines.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	return s.repo.Get(ctx, id)
}

// List returns transfers matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) validateInput(ctx context.Context, input CreateInput) error {
	if input.SourceID == 0 || input.DestID == 0 || input.SourceID == input.DestID {
		return ErrValidation
	}
	if len(input.Lines) == 0 {
		return ErrValidation
	}
	for _, locID := range []int64{input.SourceID, input.DestID} {
		ok, err := s.locations.LocationExists(ctx, locID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: location %d", masterdata.ErrUnknownReference, locID)
		}
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Qty.Sign() <= 0 {
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
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "stock_transfer", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
