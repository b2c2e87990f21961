package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// repository holds what every repository needs: the DB and the helpers to run squirrel builders on it.
type repository struct {
	db core.DB
}

func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

// inTx runs fn in the caller's executor when one is given, in a new transaction otherwise.
func (repo repository) inTx(ctx context.Context, svcExec []core.DBExecutor, fn func(exe core.DBExecutor) error) (err error) {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return fn(svcExec[0])
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

func get(ctx context.Context, exe core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exe.GetContext(ctx, dest, query, args...)
}

func selectAll(ctx context.Context, exe core.DBExecutor, dest interface{}, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return exe.SelectContext(ctx, dest, query, args...)
}

func execute(ctx context.Context, exe core.DBExecutor, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return exe.ExecContext(ctx, query, args...)
}

// insertID runs an INSERT ... RETURNING id.
func insertID(ctx context.Context, exe core.DBExecutor, b sq.InsertBuilder) (int, error) {
	var id int
	err := get(ctx, exe, &id, b.Suffix("RETURNING id"))
	return id, err
}

// mustAffect returns notFound when the statement changed no row.
func mustAffect(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// trapNoRowsErr maps psql "no rows" err to notFound, leaving notFound itself unwrapped
func trapNoRowsErr(err error, notFound error, msg string) error {
	if cause := errors.Cause(err); cause == sql.ErrNoRows || cause == notFound {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// orderBy converts orderings to ORDER BY clauses, keeping only the known fields.
func orderBy(ordering []core.DBOrdering, columns map[string]string) []string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	return clauses
}

// ilike matches any of the columns against the search keyword.
func ilike(search string, columns ...string) sq.Or {
	val := "%" + strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(search) + "%"
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.ILike{col: val})
	}
	return or
}

// syncLinks replaces the rows of a many-to-many table for one owner.
func syncLinks(ctx context.Context, exe core.DBExecutor, table, ownerCol string, ownerID int, linkCol string, linkIDs []int) error {
	if _, err := execute(ctx, exe, psql.Delete(table).Where(sq.Eq{ownerCol: ownerID})); err != nil {
		return errors.Wrap(err, "clearing "+table)
	}
	if len(linkIDs) == 0 {
		return nil
	}
	ins := psql.Insert(table).Columns(ownerCol, linkCol)
	for _, id := range linkIDs {
		ins = ins.Values(ownerID, id)
	}
	_, err := execute(ctx, exe, ins)
	return errors.Wrap(err, "inserting "+table)
}

// isUniqueViolation reports whether err comes from a unique constraint.
func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == "23505"
}

// isForeignKeyViolation reports whether err comes from a foreign key constraint.
func isForeignKeyViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == "23503"
}

// linkTags gets or creates the tags by value, then makes them the only tags of the owner.
func linkTags(ctx context.Context, exe core.DBExecutor, tagTable, linkTable, ownerCol string, ownerID int, values []string) error {
	ids := make([]int, 0, len(values))
	for _, value := range values {
		var id int
		// the no-op update makes RETURNING yield the existing row
		err := get(ctx, exe, &id, psql.Insert(tagTable).
			Columns("value").
			Values(value).
			Suffix("ON CONFLICT (value) DO UPDATE SET value = EXCLUDED.value RETURNING id"))
		if err != nil {
			return errors.Wrap(err, "getting or creating "+tagTable)
		}
		ids = append(ids, id)
	}
	return syncLinks(ctx, exe, linkTable, ownerCol, ownerID, "tag_id", ids)
}

func intsOf(arr pq.Int64Array) []int {
	ints := make([]int, 0, len(arr))
	for _, v := range arr {
		ints = append(ints, int(v))
	}
	return ints
}

func int64Array(ints []int) pq.Int64Array {
	arr := make(pq.Int64Array, 0, len(ints))
	for _, v := range ints {
		arr = append(arr, int64(v))
	}
	return arr
}
