package sqlxrepos

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/uclouvain/osis-partnership-sub000/core/ume"
)

func TestUMERepository_NotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("update", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE ucl_management_entity SET .* WHERE id = \\$\\d+").WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := NewUMERepository(db).UpdateUME(ctx, ume.UME{ID: 7, FacultyID: 12})
		assert.Equal(t, ume.ErrNotFound, err)
	})

	t.Run("delete", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("DELETE FROM ucl_management_entity WHERE id = \\$1").WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.Equal(t, ume.ErrNotFound, NewUMERepository(db).DeleteUME(ctx, 7))
	})
}

func TestUMERepository_CheckUniqueness(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT EXISTS \\( SELECT 1 FROM ucl_management_entity WHERE .*faculty_id = \\$1 AND entity_id IS NULL AND id <> \\$2").
		WithArgs(12, 3).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	assert.Equal(t, ume.ErrUMEExists, NewUMERepository(db).CheckUniqueness(ctx, 12, nil, 3))
}
