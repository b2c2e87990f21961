package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
)

var errFundingUsed = core.NewValidationError(errors.New("this funding is used by partnerships"))

type fundingTypeRow struct {
	ID        int    `db:"id"`
	Name      string `db:"name"`
	URL       string `db:"url"`
	ProgramID int    `db:"program_id"`
	IsActive  bool   `db:"is_active"`
}

type financingRow struct {
	ID           int           `db:"id"`
	Name         string        `db:"name"`
	URL          string        `db:"url"`
	AcademicYear int           `db:"academic_year"`
	TypeID       null.Int      `db:"type_id"`
	CountryIDs   pq.Int64Array `db:"country_ids"`
}

type fundingRepository struct {
	repository
}

var _ funding.Repository = (*fundingRepository)(nil)

func NewFundingRepository(db core.DB) funding.Repository {
	return &fundingRepository{repository{db: db}}
}

// save inserts the row when id is 0, updates it otherwise.
func (repo fundingRepository) save(ctx context.Context, exe core.DBExecutor, table string, id int, values map[string]interface{}) (int, error) {
	var err error
	if id == 0 {
		id, err = insertID(ctx, exe, psql.Insert(table).SetMap(values))
	} else {
		res, uErr := execute(ctx, exe, psql.Update(table).SetMap(values).Where(sq.Eq{"id": id}))
		err = mustAffect(res, uErr, funding.ErrNotFound)
	}
	switch {
	case err == nil:
		return id, nil
	case isUniqueViolation(err):
		return 0, funding.ErrNameExists
	case err == funding.ErrNotFound:
		return 0, err
	}
	return 0, errors.Wrap(err, "saving "+table)
}

func (repo fundingRepository) delete(ctx context.Context, exe core.DBExecutor, table string, id int) error {
	res, err := execute(ctx, exe, psql.Delete(table).Where(sq.Eq{"id": id}))
	if err = mustAffect(res, err, funding.ErrNotFound); err != nil {
		if isForeignKeyViolation(err) {
			return errFundingUsed
		}
		return trapNoRowsErr(err, funding.ErrNotFound, "deleting "+table)
	}
	return nil
}

func searchFunding(q sq.SelectBuilder, filter *funding.Filter) sq.SelectBuilder {
	if filter == nil {
		return q
	}
	if filter.Search != "" {
		q = q.Where(ilike(filter.Search, "name"))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	return q
}

func (repo fundingRepository) QuerySources(ctx context.Context, filter *funding.Filter, exec ...core.DBExecutor) ([]funding.Source, error) {
	var sources []funding.Source
	q := searchFunding(psql.Select("id", "name").From("funding_source").OrderBy("name"), filter)
	err := selectAll(ctx, repo.getExec(exec), &sources, q)
	return sources, errors.Wrap(err, "querying funding sources")
}

func (repo fundingRepository) GetSource(ctx context.Context, id int, exec ...core.DBExecutor) (funding.Source, error) {
	var s funding.Source
	if err := get(ctx, repo.getExec(exec), &s, psql.Select("id", "name").From("funding_source").Where(sq.Eq{"id": id})); err != nil {
		return funding.Source{}, trapNoRowsErr(err, funding.ErrNotFound, "getting funding source")
	}
	return s, nil
}

func (repo fundingRepository) SaveSource(ctx context.Context, s funding.Source, exec ...core.DBExecutor) (funding.Source, error) {
	id, err := repo.save(ctx, repo.getExec(exec), "funding_source", s.ID, map[string]interface{}{"name": s.Name})
	if err != nil {
		return funding.Source{}, err
	}
	s.ID = id
	return s, nil
}

func (repo fundingRepository) DeleteSource(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return repo.delete(ctx, repo.getExec(exec), "funding_source", id)
}

type programRow struct {
	ID       int    `db:"id"`
	Name     string `db:"name"`
	SourceID int    `db:"source_id"`
}

func (repo fundingRepository) QueryPrograms(ctx context.Context, filter *funding.Filter, exec ...core.DBExecutor) ([]funding.Program, error) {
	q := searchFunding(psql.Select("id", "name", "source_id").From("funding_program").OrderBy("name"), filter)
	if filter != nil && filter.SourceID != 0 {
		q = q.Where(sq.Eq{"source_id": filter.SourceID})
	}
	var rows []programRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying funding programs")
	}
	programs := make([]funding.Program, 0, len(rows))
	for _, r := range rows {
		programs = append(programs, funding.Program(r))
	}
	return programs, nil
}

func (repo fundingRepository) GetProgram(ctx context.Context, id int, exec ...core.DBExecutor) (funding.Program, error) {
	var r programRow
	if err := get(ctx, repo.getExec(exec), &r, psql.Select("id", "name", "source_id").From("funding_program").Where(sq.Eq{"id": id})); err != nil {
		return funding.Program{}, trapNoRowsErr(err, funding.ErrNotFound, "getting funding program")
	}
	return funding.Program(r), nil
}

func (repo fundingRepository) SaveProgram(ctx context.Context, p funding.Program, exec ...core.DBExecutor) (funding.Program, error) {
	id, err := repo.save(ctx, repo.getExec(exec), "funding_program", p.ID, map[string]interface{}{
		"name":      p.Name,
		"source_id": p.SourceID,
	})
	if err != nil {
		return funding.Program{}, err
	}
	p.ID = id
	return p, nil
}

func (repo fundingRepository) DeleteProgram(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return repo.delete(ctx, repo.getExec(exec), "funding_program", id)
}

func (repo fundingRepository) QueryTypes(ctx context.Context, filter *funding.Filter, exec ...core.DBExecutor) ([]funding.Type, error) {
	q := searchFunding(psql.Select("id", "name", "url", "program_id", "is_active").From("funding_type").OrderBy("name"), filter)
	if filter != nil {
		if filter.ProgramID != 0 {
			q = q.Where(sq.Eq{"program_id": filter.ProgramID})
		}
		if filter.ActiveOnly {
			q = q.Where(sq.Eq{"is_active": true})
		}
	}
	var rows []fundingTypeRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying funding types")
	}
	types := make([]funding.Type, 0, len(rows))
	for _, r := range rows {
		types = append(types, funding.Type(r))
	}
	return types, nil
}

func (repo fundingRepository) GetType(ctx context.Context, id int, exec ...core.DBExecutor) (funding.Type, error) {
	var r fundingTypeRow
	q := psql.Select("id", "name", "url", "program_id", "is_active").From("funding_type").Where(sq.Eq{"id": id})
	if err := get(ctx, repo.getExec(exec), &r, q); err != nil {
		return funding.Type{}, trapNoRowsErr(err, funding.ErrNotFound, "getting funding type")
	}
	return funding.Type(r), nil
}

func (repo fundingRepository) SaveType(ctx context.Context, t funding.Type, exec ...core.DBExecutor) (funding.Type, error) {
	id, err := repo.save(ctx, repo.getExec(exec), "funding_type", t.ID, map[string]interface{}{
		"name":       t.Name,
		"url":        t.URL,
		"program_id": t.ProgramID,
		"is_active":  t.IsActive,
	})
	if err != nil {
		return funding.Type{}, err
	}
	t.ID = id
	return t, nil
}

func (repo fundingRepository) DeleteType(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return repo.delete(ctx, repo.getExec(exec), "funding_type", id)
}

func (repo fundingRepository) QueryFinancings(ctx context.Context, year int, exec ...core.DBExecutor) ([]funding.Financing, error) {
	q := psql.Select(
		"f.id", "f.name", "f.url", "f.academic_year", "f.type_id",
		"COALESCE(array_agg(fc.country_id ORDER BY fc.country_id) FILTER (WHERE fc.country_id IS NOT NULL), '{}') AS country_ids",
	).
		From("financing f").
		LeftJoin("financing_countries fc ON fc.financing_id = f.id").
		Where(sq.Eq{"f.academic_year": year}).
		GroupBy("f.id").
		OrderBy("f.name")

	var rows []financingRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying financings")
	}
	financings := make([]funding.Financing, 0, len(rows))
	for _, r := range rows {
		financings = append(financings, funding.Financing{
			ID:           r.ID,
			Name:         r.Name,
			URL:          r.URL,
			AcademicYear: r.AcademicYear,
			TypeID:       intPtr(r.TypeID),
			CountryIDs:   intsOf(r.CountryIDs),
		})
	}
	return financings, nil
}

func (repo fundingRepository) ReplaceFinancings(ctx context.Context, year int, financings []funding.Financing) error {
	return repo.inTx(ctx, nil, func(exe core.DBExecutor) error {
		if _, err := execute(ctx, exe, psql.Delete("financing").Where(sq.Eq{"academic_year": year})); err != nil {
			return errors.Wrap(err, "deleting financings")
		}
		for _, f := range financings {
			id, err := insertID(ctx, exe, psql.Insert("financing").
				Columns("name", "url", "academic_year", "type_id").
				Values(f.Name, f.URL, year, null.IntFromPtr(f.TypeID)))
			if err != nil {
				return errors.Wrap(err, "inserting financing "+f.Name)
			}
			if err = syncLinks(ctx, exe, "financing_countries", "financing_id", id, "country_id", f.CountryIDs); err != nil {
				return err
			}
		}
		return nil
	})
}
