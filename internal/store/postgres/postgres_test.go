package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{name: "no rows", err: sql.ErrNoRows, kind: apperr.KindNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, kind: apperr.KindConflict},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, kind: apperr.KindTransient},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), kind: apperr.KindTransient},
		{name: "deadline", err: context.DeadlineExceeded, kind: apperr.KindTransient},
		{name: "conn done", err: sql.ErrConnDone, kind: apperr.KindTransient},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, kind: apperr.KindInternal},
		{name: "passthrough", err: apperr.ErrCartFinalized, kind: apperr.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, apperr.KindOf(classify(tt.err)))
		})
	}

	assert.NoError(t, classify(nil))
	assert.True(t, errors.Is(classify(sql.ErrNoRows), store.ErrNotFound))
	assert.True(t, errors.Is(classify(apperr.ErrCartFinalized), apperr.ErrCartFinalized))
}

func TestFoldAdjustmentsMergesPerItem(t *testing.T) {
	ids, deltas := foldAdjustments([]domain.StockAdjustment{
		{ItemID: "a", Delta: -2},
		{ItemID: "b", Delta: 5},
		{ItemID: "a", Delta: -3},
	})
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, []int64{-5, 5}, deltas)

	ids, deltas = foldAdjustments(nil)
	assert.Empty(t, ids)
	assert.Empty(t, deltas)
}
