package sqlxrepos

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = mockDB.Close()
	})
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestRepository_inTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		db, mock := newMock(t)
		repo := repository{db: db}
		mock.ExpectBegin()
		mock.ExpectExec("DELETE FROM contact").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.inTx(ctx, nil, func(exe core.DBExecutor) error {
			_, err := execute(ctx, exe, psql.Delete("contact").Where(sq.Eq{"id": 1}))
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		db, mock := newMock(t)
		repo := repository{db: db}
		mock.ExpectBegin()
		mock.ExpectRollback()

		failure := errors.New("failure")
		err := repo.inTx(ctx, nil, func(core.DBExecutor) error { return failure })
		assert.Equal(t, failure, err)
	})

	t.Run("caller executor", func(t *testing.T) {
		db, mock := newMock(t)
		repo := repository{db: db}
		mock.ExpectExec("DELETE FROM contact").WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.inTx(ctx, []core.DBExecutor{db}, func(exe core.DBExecutor) error {
			_, err := execute(ctx, exe, psql.Delete("contact").Where(sq.Eq{"id": 1}))
			return err
		})
		assert.NoError(t, err)
	})
}

func TestMustAffect(t *testing.T) {
	notFound := errors.New("not found")
	assert.Equal(t, notFound, mustAffect(sqlmock.NewResult(0, 0), nil, notFound))
	assert.NoError(t, mustAffect(sqlmock.NewResult(0, 2), nil, notFound))

	failure := errors.New("failure")
	assert.Equal(t, failure, mustAffect(nil, failure, notFound))
}

func TestTrapNoRowsErr(t *testing.T) {
	notFound := errors.New("not found")
	assert.Equal(t, notFound, trapNoRowsErr(sql.ErrNoRows, notFound, "getting"))
	assert.Equal(t, notFound, trapNoRowsErr(errors.Wrap(sql.ErrNoRows, "query"), notFound, "getting"))
	assert.Equal(t, notFound, trapNoRowsErr(mustAffect(sqlmock.NewResult(0, 0), nil, notFound), notFound, "deleting"))

	failure := errors.New("failure")
	err := trapNoRowsErr(failure, notFound, "deleting")
	assert.EqualError(t, err, "deleting: failure")
	assert.Equal(t, failure, errors.Cause(err))
}

func TestConstraintViolations(t *testing.T) {
	unique := errors.Wrap(&pq.Error{Code: "23505"}, "inserting")
	fk := &pq.Error{Code: "23503"}

	assert.True(t, isUniqueViolation(unique))
	assert.False(t, isUniqueViolation(fk))
	assert.True(t, isForeignKeyViolation(fk))
	assert.False(t, isForeignKeyViolation(errors.New("other")))
}

func TestOrderBy(t *testing.T) {
	columns := map[string]string{"partner": "name", "city": "address_city"}
	got := orderBy([]core.DBOrdering{
		{Field: "city", Ascending: false},
		{Field: "unknown", Ascending: true},
		{Field: "partner", Ascending: true},
	}, columns)
	assert.Equal(t, []string{"address_city DESC", "name ASC"}, got)
}

func TestIlike(t *testing.T) {
	query, args, err := ilike("50%_off", "name", "code").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(name ILIKE ? OR code ILIKE ?)", query)
	assert.Equal(t, []interface{}{`%50\%\_off%`, `%50\%\_off%`}, args)
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		pg         core.Pagination
		start, end int
	}{
		{"no limit", 5, core.Pagination{}, 0, 5},
		{"page", 5, core.Pagination{Limit: 2, Offset: 1}, 1, 3},
		{"last page", 5, core.Pagination{Limit: 2, Offset: 4}, 4, 5},
		{"beyond", 5, core.Pagination{Offset: 9}, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := paginate(tt.n, tt.pg)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestArrays(t *testing.T) {
	assert.Equal(t, []int{1, 3}, intsOf(pq.Int64Array{1, 3}))
	assert.Equal(t, []int{}, intsOf(nil))
	assert.Equal(t, pq.Int64Array{2, 4}, int64Array([]int{2, 4}))
}
