package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
)

var entityColumns = []string{"id", "uuid", "acronym", "title", "type", "parent_id", "website", "start_date", "end_date"}

type entityRow struct {
	ID        int       `db:"id"`
	UUID      string    `db:"uuid"`
	Acronym   string    `db:"acronym"`
	Title     string    `db:"title"`
	Type      string    `db:"type"`
	ParentID  null.Int  `db:"parent_id"`
	Website   string    `db:"website"`
	StartDate time.Time `db:"start_date"`
	EndDate   null.Time `db:"end_date"`
	Depth     int       `db:"depth"`
}

func (r entityRow) entity() entity.Entity {
	return entity.Entity{
		ID:        r.ID,
		UUID:      r.UUID,
		Acronym:   r.Acronym,
		Title:     r.Title,
		Type:      r.Type,
		ParentID:  intPtr(r.ParentID),
		Website:   r.Website,
		StartDate: r.StartDate,
		EndDate:   r.EndDate.Ptr(),
	}
}

type entityRepository struct {
	repository
}

var _ entity.Repository = (*entityRepository)(nil)

func NewEntityRepository(db core.DB) entity.Repository {
	return &entityRepository{repository{db: db}}
}

func (repo entityRepository) CreateEntity(ctx context.Context, e entity.Entity, exec ...core.DBExecutor) (entity.Entity, error) {
	id, err := insertID(ctx, repo.getExec(exec), psql.Insert("entity").SetMap(map[string]interface{}{
		"uuid":       e.UUID,
		"acronym":    e.Acronym,
		"title":      e.Title,
		"type":       e.Type,
		"parent_id":  null.IntFromPtr(e.ParentID),
		"website":    e.Website,
		"start_date": e.StartDate,
		"end_date":   null.TimeFromPtr(e.EndDate),
	}))
	if err != nil {
		return entity.Entity{}, errors.Wrap(err, "inserting entity")
	}
	e.ID = id
	return e, nil
}

func (repo entityRepository) GetEntity(ctx context.Context, filter entity.GetFilter, exec ...core.DBExecutor) (entity.Entity, error) {
	q := psql.Select(entityColumns...).From("entity")
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.UUID != "":
		q = q.Where(sq.Eq{"uuid": filter.UUID})
	case filter.Acronym != "":
		q = q.Where(sq.Eq{"acronym": filter.Acronym}).OrderBy("end_date DESC NULLS FIRST")
	default:
		return entity.Entity{}, entity.ErrNotFound
	}

	var r entityRow
	if err := get(ctx, repo.getExec(exec), &r, q.Limit(1)); err != nil {
		return entity.Entity{}, trapNoRowsErr(err, entity.ErrNotFound, "getting entity")
	}
	return r.entity(), nil
}

func (repo entityRepository) QueryEntities(ctx context.Context, filter *entity.QueryFilter, exec ...core.DBExecutor) ([]entity.Entity, error) {
	q := psql.Select(entityColumns...).From("entity").OrderBy("acronym", "id")
	if filter != nil {
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "acronym", "title"))
		}
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"id": filter.IDs})
		}
		if len(filter.Types) > 0 {
			q = q.Where(sq.Eq{"type": filter.Types})
		}
		if filter.ParentID != 0 {
			q = q.Where(sq.Eq{"parent_id": filter.ParentID})
		}
		if filter.WithUME {
			q = q.Where("id IN (SELECT COALESCE(entity_id, faculty_id) FROM ucl_management_entity)")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}

	var rows []entityRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying entities")
	}
	entities := make([]entity.Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity())
	}
	return entities, nil
}

const ancestorsQuery = `
WITH RECURSIVE chain AS (
    SELECT id, uuid, acronym, title, type, parent_id, website, start_date, end_date, 0 AS depth
    FROM entity WHERE id = $1
    UNION ALL
    SELECT e.id, e.uuid, e.acronym, e.title, e.type, e.parent_id, e.website, e.start_date, e.end_date, c.depth + 1
    FROM entity e JOIN chain c ON e.id = c.parent_id
)
SELECT * FROM chain ORDER BY depth DESC`

func (repo entityRepository) Ancestors(ctx context.Context, id int, exec ...core.DBExecutor) ([]entity.Entity, error) {
	var rows []entityRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, ancestorsQuery, id); err != nil {
		return nil, errors.Wrap(err, "querying ancestors")
	}
	if len(rows) == 0 {
		return nil, entity.ErrNotFound
	}
	entities := make([]entity.Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity())
	}
	return entities, nil
}

const descendantsQuery = `
WITH RECURSIVE tree AS (
    SELECT id FROM entity WHERE id = $1
    UNION ALL
    SELECT e.id FROM entity e JOIN tree t ON e.parent_id = t.id
)
SELECT id FROM tree`

func (repo entityRepository) Descendants(ctx context.Context, id int, exec ...core.DBExecutor) ([]int, error) {
	var ids []int
	if err := repo.getExec(exec).SelectContext(ctx, &ids, descendantsQuery, id); err != nil {
		return nil, errors.Wrap(err, "querying descendants")
	}
	if len(ids) == 0 {
		return nil, entity.ErrNotFound
	}
	return ids, nil
}

func intPtr(n null.Int) *int {
	if !n.Valid {
		return nil
	}
	i := n.Int
	return &i
}
