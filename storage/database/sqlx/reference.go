package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
)

type countryRow struct {
	ID            int         `db:"id"`
	ISOCode       string      `db:"iso_code"`
	Name          string      `db:"name"`
	NameEn        string      `db:"name_en"`
	ContinentID   null.Int    `db:"continent_id"`
	ContinentCode null.String `db:"continent_code"`
}

func (r countryRow) country() reference.Country {
	return reference.Country{
		ID:            r.ID,
		ISOCode:       r.ISOCode,
		Name:          r.Name,
		NameEn:        r.NameEn,
		ContinentID:   intPtr(r.ContinentID),
		ContinentCode: r.ContinentCode.String,
	}
}

type offerRow struct {
	ID           int      `db:"id"`
	UUID         string   `db:"uuid"`
	Acronym      string   `db:"acronym"`
	Title        string   `db:"title"`
	TitleEn      string   `db:"title_en"`
	AcademicYear int      `db:"academic_year"`
	EntityID     null.Int `db:"entity_id"`
}

type referenceRepository struct {
	repository
}

var _ reference.Repository = (*referenceRepository)(nil)

func NewReferenceRepository(db core.DB) reference.Repository {
	return &referenceRepository{repository{db: db}}
}

func (repo referenceRepository) QueryContinents(ctx context.Context, exec ...core.DBExecutor) ([]reference.Continent, error) {
	var continents []reference.Continent
	err := selectAll(ctx, repo.getExec(exec), &continents, psql.Select("id", "code", "name").From("continent").OrderBy("name"))
	return continents, errors.Wrap(err, "querying continents")
}

func (repo referenceRepository) GetContinent(ctx context.Context, code string, exec ...core.DBExecutor) (reference.Continent, error) {
	var c reference.Continent
	err := get(ctx, repo.getExec(exec), &c, psql.Select("id", "code", "name").From("continent").Where(sq.Eq{"code": code}))
	if err != nil {
		return reference.Continent{}, trapNoRowsErr(err, reference.ErrNotFound, "getting continent")
	}
	return c, nil
}

func (repo referenceRepository) countries() sq.SelectBuilder {
	return psql.Select("c.id", "c.iso_code", "c.name", "c.name_en", "c.continent_id", "ct.code AS continent_code").
		From("country c").
		LeftJoin("continent ct ON ct.id = c.continent_id")
}

func (repo referenceRepository) QueryCountries(ctx context.Context, filter *reference.CountryFilter, exec ...core.DBExecutor) ([]reference.Country, error) {
	q := repo.countries().OrderBy("c.name")
	if filter != nil {
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "c.name", "c.name_en", "c.iso_code"))
		}
		if filter.ContinentID != 0 {
			q = q.Where(sq.Eq{"c.continent_id": filter.ContinentID})
		}
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"c.id": filter.IDs})
		}
		if filter.HavingPartners {
			q = q.Where("c.id IN (SELECT address_country_id FROM partner WHERE address_country_id IS NOT NULL)")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}

	var rows []countryRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying countries")
	}
	countries := make([]reference.Country, 0, len(rows))
	for _, r := range rows {
		countries = append(countries, r.country())
	}
	return countries, nil
}

func (repo referenceRepository) GetCountry(ctx context.Context, id int, isoCode string, exec ...core.DBExecutor) (reference.Country, error) {
	q := repo.countries()
	if id != 0 {
		q = q.Where(sq.Eq{"c.id": id})
	} else {
		q = q.Where(sq.Eq{"c.iso_code": isoCode})
	}
	var r countryRow
	if err := get(ctx, repo.getExec(exec), &r, q); err != nil {
		return reference.Country{}, trapNoRowsErr(err, reference.ErrNotFound, "getting country")
	}
	return r.country(), nil
}

func (repo referenceRepository) CreateCountry(ctx context.Context, c reference.Country, exec ...core.DBExecutor) (reference.Country, error) {
	id, err := insertID(ctx, repo.getExec(exec), psql.Insert("country").
		Columns("iso_code", "name", "name_en", "continent_id").
		Values(c.ISOCode, c.Name, c.NameEn, null.IntFromPtr(c.ContinentID)))
	if err != nil {
		if isUniqueViolation(err) {
			return reference.Country{}, core.NewFieldError("iso_code", "a country with this ISO code already exists")
		}
		return reference.Country{}, errors.Wrap(err, "inserting country")
	}
	c.ID = id
	return c, nil
}

func (repo referenceRepository) QueryEducationFields(ctx context.Context, filter *reference.SearchFilter, exec ...core.DBExecutor) ([]reference.EducationField, error) {
	q := psql.Select("id", "uuid", "code", "label").From("education_field").OrderBy("label")
	if filter != nil {
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "code", "label"))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}
	var fields []reference.EducationField
	err := selectAll(ctx, repo.getExec(exec), &fields, q)
	return fields, errors.Wrap(err, "querying education fields")
}

func (repo referenceRepository) CreateEducationField(ctx context.Context, f reference.EducationField, exec ...core.DBExecutor) (reference.EducationField, error) {
	id, err := insertID(ctx, repo.getExec(exec), psql.Insert("education_field").
		Columns("uuid", "code", "label").
		Values(f.UUID, f.Code, f.Label))
	if err != nil {
		if isUniqueViolation(err) {
			return reference.EducationField{}, core.NewFieldError("code", "an education field with this code already exists")
		}
		return reference.EducationField{}, errors.Wrap(err, "inserting education field")
	}
	f.ID = id
	return f, nil
}

func (repo referenceRepository) QueryEducationLevels(ctx context.Context, exec ...core.DBExecutor) ([]reference.EducationLevel, error) {
	var levels []reference.EducationLevel
	err := selectAll(ctx, repo.getExec(exec), &levels, psql.Select("code", "label").From("education_level").OrderBy("code"))
	return levels, errors.Wrap(err, "querying education levels")
}

func (repo referenceRepository) QueryOffers(ctx context.Context, filter *reference.OfferFilter, exec ...core.DBExecutor) ([]reference.Offer, error) {
	q := psql.Select("id", "uuid", "acronym", "title", "title_en", "academic_year", "entity_id").
		From("offer").
		OrderBy("acronym", "academic_year DESC")
	if filter != nil {
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "acronym", "title", "title_en"))
		}
		if filter.AcademicYear != 0 {
			q = q.Where(sq.Eq{"academic_year": filter.AcademicYear})
		}
		if len(filter.EntityIDs) > 0 {
			q = q.Where(sq.Eq{"entity_id": filter.EntityIDs})
		}
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"id": filter.IDs})
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}

	var rows []offerRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying offers")
	}
	offers := make([]reference.Offer, 0, len(rows))
	for _, r := range rows {
		offers = append(offers, reference.Offer{
			ID:           r.ID,
			UUID:         r.UUID,
			Acronym:      r.Acronym,
			Title:        r.Title,
			TitleEn:      r.TitleEn,
			AcademicYear: r.AcademicYear,
			EntityID:     intPtr(r.EntityID),
		})
	}
	return offers, nil
}

func (repo referenceRepository) CreateOffer(ctx context.Context, o reference.Offer, exec ...core.DBExecutor) (reference.Offer, error) {
	id, err := insertID(ctx, repo.getExec(exec), psql.Insert("offer").
		Columns("uuid", "acronym", "title", "title_en", "academic_year", "entity_id").
		Values(o.UUID, o.Acronym, o.Title, o.TitleEn, o.AcademicYear, null.IntFromPtr(o.EntityID)))
	if err != nil {
		if isForeignKeyViolation(err) {
			return reference.Offer{}, core.NewFieldError("entity_id", "entity not found")
		}
		return reference.Offer{}, errors.Wrap(err, "inserting offer")
	}
	o.ID = id
	return o, nil
}

func tagTable(kind reference.TagKind) (string, error) {
	switch kind {
	case reference.PartnershipTag, reference.PartnerTag:
		return string(kind), nil
	}
	return "", errors.Errorf("unknown tag kind %q", kind)
}

func (repo referenceRepository) QueryTags(ctx context.Context, kind reference.TagKind, filter *reference.SearchFilter, exec ...core.DBExecutor) ([]reference.Tag, error) {
	table, err := tagTable(kind)
	if err != nil {
		return nil, err
	}
	q := psql.Select("id", "value").From(table).OrderBy("value")
	if filter != nil {
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "value"))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}
	var tags []reference.Tag
	err = selectAll(ctx, repo.getExec(exec), &tags, q)
	return tags, errors.Wrap(err, "querying tags")
}

func (repo referenceRepository) GetOrCreateTag(ctx context.Context, kind reference.TagKind, value string, exec ...core.DBExecutor) (reference.Tag, error) {
	table, err := tagTable(kind)
	if err != nil {
		return reference.Tag{}, err
	}
	// the no-op update makes RETURNING yield the existing row
	t := reference.Tag{Value: value}
	err = get(ctx, repo.getExec(exec), &t.ID, psql.Insert(table).
		Columns("value").
		Values(value).
		Suffix("ON CONFLICT (value) DO UPDATE SET value = EXCLUDED.value RETURNING id"))
	return t, errors.Wrap(err, "getting or creating tag")
}

func (repo referenceRepository) QueryMediaTypes(ctx context.Context, exec ...core.DBExecutor) ([]reference.MediaType, error) {
	var types []reference.MediaType
	err := selectAll(ctx, repo.getExec(exec), &types, psql.Select("id", "code", "label").From("media_type").OrderBy("label"))
	return types, errors.Wrap(err, "querying media types")
}
