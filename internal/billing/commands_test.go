package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billable/jobqueue/pkg/forward"
)

func TestRegisterCommands(t *testing.T) {
	reg := forward.NewRegistry()
	RegisterCommands(reg, newTestStore(t))

	tests := []struct {
		model, op string
		kind      forward.Kind
	}{
		{InvoiceModel, OpFind, forward.Read},
		{InvoiceModel, OpMarkSent, forward.Write},
		{InvoiceDocumentModel, OpFind, forward.Read},
		{InvoiceDocumentModel, OpUpsert, forward.Write},
	}
	for _, tt := range tests {
		kind, ok := reg.Kind(tt.model, tt.op)
		require.True(t, ok, "%s.%s registered", tt.model, tt.op)
		assert.Equal(t, tt.kind, kind, "%s.%s", tt.model, tt.op)
	}
}

func TestRecords_ThroughRegistry(t *testing.T) {
	s := newTestStore(t)
	inv := seedInvoice(t, s)
	reg := forward.NewRegistry()
	RegisterCommands(reg, s)
	r := NewRecords(reg)
	ctx := context.Background()

	got, err := r.FindInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inv.Number, got.Number)
	assert.Len(t, got.TimeEntries, 3)

	missing, err := r.FindInvoice(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, r.UpsertDocument(ctx, documentFor(inv, []byte("%PDF-1.3 test"), false)))
	doc, err := r.FindDocument(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []byte("%PDF-1.3 test"), doc.Content)

	require.NoError(t, r.MarkSent(ctx, inv.ID, time.Now()))
	assert.ErrorIs(t, r.MarkSent(ctx, "missing", time.Now()), ErrInvoiceNotFound)
}
