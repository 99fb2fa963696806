package transfer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/masterdata"
)

type memoryEnv struct {
	docs        map[int64]*Transfer
	nextDocID   int64
	nextLineID  int64
	levels      map[string]ledger.Level
	entries     []ledger.Entry
	nextEntryID int64
}

func newMemoryEnv() *memoryEnv {
	return &memoryEnv{docs: map[int64]*Transfer{}, levels: map[string]ledger.Level{}}
}

func levelKey(productID, locationID int64) string {
	return fmt.Sprintf("%d:%d", productID, locationID)
}

type memoryRepo struct{ env *memoryEnv }

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{env: r.env})
}

func (r *memoryRepo) Get(_ context.Context, id int64) (Transfer, error) {
	doc, ok := r.env.docs[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	out := *doc
	out.Lines = append([]Line(nil), doc.Lines...)
	return out, nil
}

func (r *memoryRepo) List(_ context.Context, _ ListFilter) ([]Transfer, int, error) {
	var out []Transfer
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

func (t *memoryTx) InsertHeader(_ context.Context, doc Transfer) (int64, error) {
	t.env.nextDocID++
	doc.ID = t.env.nextDocID
	t.env.docs[doc.ID] = &doc
	return doc.ID, nil
}

func (t *memoryTx) InsertLine(_ context.Context, line Line) (int64, error) {
	doc, ok := t.env.docs[line.TransferID]
	if !ok {
		return 0, ErrNotFound
	}
	t.env.nextLineID++
	line.ID = t.env.nextLineID
	doc.Lines = append(doc.Lines, line)
	return line.ID, nil
}

func (t *memoryTx) GetForUpdate(_ context.Context, id int64) (Transfer, error) {
	doc, ok := t.env.docs[id]
	if !ok {
		return Transfer{}, ErrNotFound
	}
	out := *doc
	out.Lines = append([]Line(nil), doc.Lines...)
	return out, nil
}

func (t *memoryTx) UpdateHeader(_ context.Context, doc Transfer) error {
	stored, ok := t.env.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	lines := stored.Lines
	*stored = doc
	stored.Lines = lines
	return nil
}

func (t *memoryTx) UpdateLine(_ context.Context, line Line) error {
	doc, ok := t.env.docs[line.TransferID]
	if !ok {
		return ErrNotFound
	}
	for i := range doc.Lines {
		if doc.Lines[i].ID == line.ID {
			doc.Lines[i] = line
			return nil
		}
	}
	return ErrLineNotFound
}

func (t *memoryTx) DeleteLines(_ context.Context, transferID int64) error {
	if doc, ok := t.env.docs[transferID]; ok {
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
	case StatusInTransit:
		doc.PostedAt = &at
	case StatusCompleted:
		doc.CompletedAt = &at
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

type fakeLocations struct{ known map[int64]bool }

func (r *fakeLocations) LocationExists(_ context.Context, id int64) (bool, error) {
	return r.known[id], nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, docType string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-2026-%04d", docType, f.n), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

const (
	locSource = int64(100)
	locDest   = int64(200)
)

func newTestService(env *memoryEnv) *Service {
	catalog := &fakeCatalog{products: map[int64]masterdata.Product{
		1: {ID: 1, Name: "Arabica Beans", Unit: "kg"},
	}}
	locations := &fakeLocations{known: map[int64]bool{locSource: true, locDest: true}}
	led := ledger.NewService(nil, ledger.ServiceConfig{})
	return NewService(&memoryRepo{env: env}, led, catalog, locations, &fakeNumbers{}, nil, nil)
}

func seedStock(env *memoryEnv, productID, locationID int64, qty, avgCost string) {
	env.levels[levelKey(productID, locationID)] = ledger.Level{
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   dec(qty),
		AvgCost:    dec(avgCost),
	}
}

func draftInput() CreateInput {
	return CreateInput{
		SourceID: locSource,
		DestID:   locDest,
		Lines:    []LineInput{{ProductID: 1, Qty: dec("20"), Unit: "kg"}},
	}
}

func TestDeriveLineStatus(t *testing.T) {
	sent := dec("20")
	cases := []struct {
		name     string
		received string
		damaged  string
		want     LineStatus
	}{
		{"nothing accounted", "0", "0", LinePending},
		{"partial", "5", "0", LinePartiallyReceived},
		{"partial with damage", "10", "5", LinePartiallyReceived},
		{"fully received", "20", "0", LineReceived},
		{"received plus damage covers sent", "15", "5", LineReceived},
		{"fully damaged", "0", "20", LineDamaged},
		{"damage dominates", "20", "20", LineDamaged},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveLineStatus(sent, dec(tc.received), dec(tc.damaged)))
		})
	}
}

func TestCreateRejectsSameSourceAndDestination(t *testing.T) {
	svc := newTestService(newMemoryEnv())

	input := draftInput()
	input.DestID = locSource
	_, err := svc.Create(context.Background(), input, 7)
	require.ErrorIs(t, err, ErrValidation)
}

func TestPostWritesOutboundAtSource(t *testing.T) {
	env := newMemoryEnv()
	seedStock(env, 1, locSource, "50", "10")
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))

	stored := env.docs[doc.ID]
	require.Equal(t, StatusInTransit, stored.Status)
	require.Len(t, env.entries, 1)
	require.Equal(t, ledger.MovementTransferOut, env.entries[0].MovementType)
	require.True(t, env.entries[0].Qty.Equal(dec("-20")))
	require.True(t, env.levels[levelKey(1, locSource)].Quantity.Equal(dec("30")))
	// Cost captured from the source moving average for later receipts.
	require.True(t, stored.Lines[0].UnitCost.Equal(dec("10")))
}

func TestPostInsufficientSourceStock(t *testing.T) {
	env := newMemoryEnv()
	seedStock(env, 1, locSource, "5", "10")
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	err = svc.Post(context.Background(), doc.ID, 7)
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.Empty(t, env.entries)
}

func TestReceivePartialThenComplete(t *testing.T) {
	env := newMemoryEnv()
	seedStock(env, 1, locSource, "50", "10")
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	lineID := env.docs[doc.ID].Lines[0].ID

	got, err := svc.ReceiveItems(context.Background(), doc.ID, []ReceiveInput{
		{LineID: lineID, Received: dec("15"), Damaged: decimal.Zero},
	}, 8)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, got.Status)
	require.Equal(t, LinePartiallyReceived, got.Lines[0].Status)
	require.True(t, env.levels[levelKey(1, locDest)].Quantity.Equal(dec("15")))

	got, err = svc.ReceiveItems(context.Background(), doc.ID, []ReceiveInput{
		{LineID: lineID, Received: dec("3"), Damaged: dec("2")},
	}, 8)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, LineReceived, got.Lines[0].Status)
	// Damaged quantity never enters destination stock.
	require.True(t, env.levels[levelKey(1, locDest)].Quantity.Equal(dec("18")))
	require.True(t, env.levels[levelKey(1, locSource)].Quantity.Equal(dec("30")))
	require.True(t, env.levels[levelKey(1, locDest)].AvgCost.Equal(dec("10")))
}

func TestReceiveFullyDamagedLine(t *testing.T) {
	env := newMemoryEnv()
	seedStock(env, 1, locSource, "50", "10")
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	lineID := env.docs[doc.ID].Lines[0].ID

	got, err := svc.ReceiveItems(context.Background(), doc.ID, []ReceiveInput{
		{LineID: lineID, Received: decimal.Zero, Damaged: dec("20")},
	}, 8)
	require.NoError(t, err)
	require.Equal(t, LineDamaged, got.Lines[0].Status)
	require.Equal(t, StatusCompleted, got.Status)
	_, ok := env.levels[levelKey(1, locDest)]
	require.False(t, ok, "no inbound entry for damaged goods")
}

func TestReceiveOverReceiptRejected(t *testing.T) {
	env := newMemoryEnv()
	seedStock(env, 1, locSource, "50", "10")
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	lineID := env.docs[doc.ID].Lines[0].ID

	_, err = svc.ReceiveItems(context.Background(), doc.ID, []ReceiveInput{
		{LineID: lineID, Received: dec("21"), Damaged: decimal.Zero},
	}, 8)
	require.ErrorIs(t, err, ErrOverReceipt)
}

func TestReceiveBeforePostRejected(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	_, err = svc.ReceiveItems(context.Background(), doc.ID, []ReceiveInput{
		{LineID: 1, Received: dec("5"), Damaged: decimal.Zero},
	}, 8)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelInTransitCompensatesBothLocations(t *testing.T) {
	env := newMemoryEnv()
	seedStock(env, 1, locSource, "50", "10")
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Post(context.Background(), doc.ID, 7))
	lineID := env.docs[doc.ID].Lines[0].ID
	_, err = svc.ReceiveItems(context.Background(), doc.ID, []ReceiveInput{
		{LineID: lineID, Received: dec("5"), Damaged: decimal.Zero},
	}, 8)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), doc.ID, 9))
	require.Equal(t, StatusCancelled, env.docs[doc.ID].Status)
	require.True(t, env.levels[levelKey(1, locSource)].Quantity.Equal(dec("50")))
	require.True(t, env.levels[levelKey(1, locDest)].Quantity.IsZero())
	// One out, one in, plus one compensating entry for each.
	require.Len(t, env.entries, 4)

	require.ErrorIs(t, svc.Cancel(context.Background(), doc.ID, 9), ErrAlreadyCancelled)
}

func TestCancelDraftHasNoLedgerEffect(t *testing.T) {
	env := newMemoryEnv()
	svc := newTestService(env)

	doc, err := svc.Create(context.Background(), draftInput(), 7)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), doc.ID, 7))
	require.Empty(t, env.entries)
}
