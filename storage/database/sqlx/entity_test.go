package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core/entity"
)

func TestEntityRepository_Ancestors(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	columns := []string{"id", "uuid", "acronym", "title", "type", "parent_id", "website", "start_date", "end_date", "depth"}

	t.Run("root first", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("WITH RECURSIVE chain AS").
			WithArgs(12).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(1, "e-ucl", "UCL", "UCLouvain", "", nil, "", start, nil, 2).
				AddRow(11, "e-sst", "SST", "Secteur des sciences", "SECTOR", 1, "", start, nil, 1).
				AddRow(12, "e-epl", "EPL", "Ecole polytechnique", "FACULTY", 11, "", start, nil, 0))

		chain, err := NewEntityRepository(db).Ancestors(ctx, 12)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, "UCL", chain[0].Acronym)
		assert.Nil(t, chain[0].ParentID)
		assert.Equal(t, 11, *chain[2].ParentID)
		assert.Equal(t, entity.TypeFaculty, chain[2].Type)
	})

	t.Run("unknown entity", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("WITH RECURSIVE chain AS").WithArgs(404).WillReturnRows(sqlmock.NewRows(columns))

		_, err := NewEntityRepository(db).Ancestors(ctx, 404)
		assert.Equal(t, entity.ErrNotFound, err)
	})
}

func TestEntityRepository_Descendants(t *testing.T) {
	ctx := context.Background()

	t.Run("subtree", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("WITH RECURSIVE tree AS .* JOIN tree t ON e.parent_id = t.id").
			WithArgs(11).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11).AddRow(12).AddRow(13))

		ids, err := NewEntityRepository(db).Descendants(ctx, 11)
		require.NoError(t, err)
		assert.Equal(t, []int{11, 12, 13}, ids)
	})

	t.Run("unknown entity", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("WITH RECURSIVE tree AS").WithArgs(404).WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := NewEntityRepository(db).Descendants(ctx, 404)
		assert.Equal(t, entity.ErrNotFound, err)
	})
}
