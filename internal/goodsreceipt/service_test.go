package goodsreceipt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/batch"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
)

type memoryEnv struct {
	docs        map[int64]*GoodsReceipt
	nextDocID   int64
	nextLineID  int64
	levels      map[string]ledger.Level
	entries     []ledger.Entry
	nextEntryID int64
	batches     map[int64]batch.Batch
	nextBatchID int64
}

func newMemoryEnv() *memoryEnv {
	return &memoryEnv{
		docs:    map[int64]*GoodsReceipt{},
		levels:  map[string]ledger.Level{},
		batches: map[int64]batch.Batch{},
	}
}

func levelKey(productID, locationID int64) string {
	return fmt.Sprintf("%d:%d", productID, locationID)
}

type memoryRepo struct{ env *memoryEnv }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{env: r.env})
}

func (r *memoryRepo) Get(_ context.Context, id int64) (GoodsReceipt, error) {
	doc, ok := r.env.docs[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	return *doc, nil
}

func (r *memoryRepo) List(_ context.Context, _ ListFilter) ([]GoodsReceipt, int, error) {
	var out []GoodsReceipt
	for _, doc := range r.env.docs {
		out = append(out, *doc)
	}
	return out, len(out), nil
}

type memoryTx struct{ env *memoryEnv }

func (t *memoryTx) GetLevelForUpdate(_ context.Context, productID, locationID int64) (ledger.Level, error) {
	level, ok := t.env.levels[levelKey(productID, locationID)]
	if !ok {
		return ledger.Level{}, ledger.ErrLevelNotFound
	}
	return level, nil
}

func (t *memoryTx) InsertEntry(_ context.Context, entry ledger.Entry) (ledger.Entry, error) {
	t.env.nextEntryID++
	entry.ID = t.env.nextEntryID
	t.env.entries = append(t.env.entries, entry)
	return entry, nil
}

func (t *memoryTx) UpsertLevel(_ context.Context, level ledger.Level) error {
	t.env.levels[levelKey(level.ProductID, level.LocationID)] = level
	return nil
}

func (t *memoryTx) GetByReference(_ context.Context, refType string, refID uuid.UUID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range t.env.entries {
		if e.RefType == refType && e.RefID == refID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memoryTx) InsertBatch(_ context.Context, b batch.Batch) (batch.Batch, error) {
	for _, existing := range t.env.batches {
		if existing.ProductID == b.ProductID && existing.BatchNo == b.BatchNo {
			return batch.Batch{}, batch.ErrDuplicateBatch
		}
	}
	t.env.nextBatchID++
	b.ID = t.env.nextBatchID
	t.env.batches[b.ID] = b
	return b, nil
}

func (t *memoryTx) GetBatchForUpdate(_ context.Context, id int64) (batch.Batch, error) {
	b, ok := t.env.batches[id]
	if !ok {
		return batch.Batch{}, batch.ErrNotFound
	}
	return b, nil
}

func (t *memoryTx) FindBatchForUpdate(_ context.Context, productID int64, batchNo string) (batch.Batch, error) {
	for _, b := range t.env.batches {
		if b.ProductID == productID && b.BatchNo == batchNo {
			return b, nil
		}
	}
	return batch.Batch{}, batch.ErrNotFound
}

func (t *memoryTx) UpdateBatch(_ context.Context, b batch.Batch) error {
	t.env.batches[b.ID] = b
	return nil
}

func (t *memoryTx) InsertHeader(_ context.Context, doc GoodsReceipt) (int64, error) {
	t.env.nextDocID++
	doc.ID = t.env.nextDocID
	t.env.docs[doc.ID] = &doc
	return doc.ID, nil
}

func (t *memoryTx) InsertLine(_ context.Context, line Line) error {
	doc, ok := t.env.docs[line.ReceiptID]
	if !ok {
		return ErrNotFound
	}
	t.env.nextLineID++
	line.ID = t.env.nextLineID
	doc.Lines = append(doc.Lines, line)
	return nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (GoodsReceipt, error) {
	doc, ok := t.env.docs[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	return *doc, nil
}

func (t *memoryTx) UpdateHeader(_ context.Context, doc GoodsReceipt) error {
	stored, ok := t.env.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	lines := stored.Lines
	*stored = doc
	stored.Lines = lines
	return nil
}

func (t *memoryTx) DeleteLines(_ context.Context, receiptID int64) error {
	if doc, ok := t.env.docs[receiptID]; ok {
		doc.Lines = nil
	}
	return nil
}

func (t *memoryTx) SetStatus(_ context.Context, id int64, status Status, actorID int64, at time.Time) error {
	doc, ok := t.env.docs[id]
	if !ok {
		return ErrNotFound
	}
	doc.Status = status
	doc.UpdatedBy = actorID
	doc.UpdatedAt = at
	switch status {
	case StatusPosted:
		doc.PostedAt = &at
	case StatusCancelled:
		doc.CancelledAt = &at
	}
	return nil
}

func (t *memoryTx) SoftDelete(_ context.Context, id int64, _ int64, _ time.Time) error {
	delete(t.env.docs, id)
	return nil
}

type fakeCatalog struct{ products map[int64]masterdata.Product }

func (c *fakeCatalog) GetProduct(_ context.Context, id int64) (masterdata.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrUnknownReference
	}
	return p, nil
}

type fakeRegistry struct{ known map[int64]bool }

func (r *fakeRegistry) LocationExists(_ context.Context, id int64) (bool, error) {
	return r.known[id], nil
}

func (r *fakeRegistry) SupplierExists(_ context.Context, id int64) (bool, error) {
	return r.known[id], nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, docType string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2026-%04d", docType, f.n), nil
}

func newTestService(env *memoryEnv) *Service {
	catalog := &fakeCatalog{products: map[int64]masterdata.Product{
		1: {ID: 1, Name: "Arabica Beans", Unit: "kg"},
		2: {ID: 2, Name: "Whole Milk", Unit: "l", BatchTracked: true},
	}}
	registry := &fakeRegistry{known: map[int64]bool{10: true, 20: true}}
	led := ledger.NewService(nil, ledger.ServiceConfig{})
	return NewService(&memoryRepo{env: env}, led, batch.NewService(nil), catalog, registry, registry, &fakeNumbers{}, nil, nil)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func draftInput() CreateInput {
	return CreateInput{
		SupplierID: 10,
		LocationID: 20,
		Lines: []LineInput{
			{ProductID: 1, Qty: dec("25"), Unit: "kg", UnitCost: dec("12.50")},
			{ProductID: 2, Qty: dec("40"), Unit: "l", UnitCost: dec("1.10"), BatchNo: "MILK-0901"},
		},
	}
}

func TestCreateDraft(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, doc.Status)
	require.Equal(t, "GRN-2026-0001", doc.Number)
	require.Len(t, doc.Lines, 2)
	require.NotEqual(t, uuid.Nil, doc.RefID)
	require.Empty(t, env.entries, "draft must not move stock")
}

func TestCreateRejectsUnknownSupplier(t *testing.T) {
	svc := newTestService(newMemoryEnv())

	input := draftInput()
	input.SupplierID = 99
	_, err := svc.Create(context.Background(), input, 7)
	require.ErrorIs(t, err, masterdata.ErrUnknownReference)
}

func TestCreateRequiresBatchNoForTrackedProduct(t *testing.T) {
	svc := newTestService(newMemoryEnv())

	input := draftInput()
	input.Lines[1].BatchNo = ""
	_, err := svc.Create(context.Background(), input, 7)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPostAppendsEntriesAndBatches(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))

	stored := env.docs[doc.ID]
	require.Equal(t, StatusPosted, stored.Status)
	require.NotNil(t, stored.PostedAt)

	require.Len(t, env.entries, 2)
	for _, e := range env.entries {
		require.Equal(t, ledger.MovementReceipt, e.MovementType)
		require.Equal(t, RefType, e.RefType)
		require.Equal(t, doc.RefID, e.RefID)
	}
	require.True(t, env.levels[levelKey(1, 20)].Quantity.Equal(dec("25")))
	require.True(t, env.levels[levelKey(2, 20)].Quantity.Equal(dec("40")))
	require.True(t, env.levels[levelKey(1, 20)].AvgCost.Equal(dec("12.5")))

	require.Len(t, env.batches, 1)
	b := env.batches[1]
	require.Equal(t, "MILK-0901", b.BatchNo)
	require.True(t, b.Quantity.Equal(dec("40")))
	require.Equal(t, batch.StatusActive, b.Status)
}

func TestPostTwiceRejected(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))

	err = svc.Post(context.Background(), doc.ID, 7)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Len(t, env.entries, 2, "second post must not duplicate entries")
}

func TestCancelDraftOnlyFlipsStatus(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), doc.ID, 7))
	require.Equal(t, StatusCancelled, env.docs[doc.ID].Status)
	require.Empty(t, env.entries)
}

func TestCancelPostedWritesCompensatingEntries(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	require.NoError(t, svc.Cancel(context.Background(), doc.ID, 9))

	require.Equal(t, StatusCancelled, env.docs[doc.ID].Status)
	require.Len(t, env.entries, 4, "originals plus compensating entries")
	for _, e := range env.entries[2:] {
		require.Equal(t, ledger.MovementIssue, e.MovementType)
		require.Equal(t, doc.RefID, e.RefID)
		require.True(t, e.Qty.IsNegative())
	}
	require.True(t, env.levels[levelKey(1, 20)].Quantity.IsZero())
	require.True(t, env.levels[levelKey(2, 20)].Quantity.IsZero())
	require.True(t, env.batches[1].Quantity.IsZero())
	require.Equal(t, batch.StatusInactive, env.batches[1].Status)
}

func TestCancelTwiceRejected(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	require.NoError(t, svc.Cancel(context.Background(), doc.ID, 7))

	err = svc.Cancel(context.Background(), doc.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	require.Len(t, env.entries, 4, "no second round of compensation")
}

func TestPostCancelledReceiptRejected(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), doc.ID, 7))

	err = svc.Post(context.Background(), doc.ID, 7)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestUpdateReplacesLinesWhileDraft(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)

	input := draftInput()
	input.Lines = input.Lines[:1]
	input.Lines[0].Qty = dec("30")
	updated, err := svc.Update(context.Background(), doc.ID, input, 8)
	require.NoError(t, err)
	require.Len(t, updated.Lines, 1)
	require.True(t, updated.Lines[0].Qty.Equal(dec("30")))

	require.NoError(t, svc.Post(context.Background(), doc.ID, 8))
	_, err = svc.Update(context.Background(), doc.ID, input, 8)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeleteOnlyDraft(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	require.ErrorIs(t, svc.Delete(context.Background(), doc.ID, 7), ErrInvalidState)

	second, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), second.ID, 7))
	_, err = svc.Get(context.Background(), second.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
