package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/ume"
)

type umeRow struct {
	ID                          int         `db:"id"`
	FacultyID                   int         `db:"faculty_id"`
	FacultyAcronym              string      `db:"faculty_acronym"`
	EntityID                    null.Int    `db:"entity_id"`
	EntityAcronym               null.String `db:"entity_acronym"`
	AcademicResponsibleID       null.Int    `db:"academic_responsible_id"`
	AdministrativeResponsibleID null.Int    `db:"administrative_responsible_id"`
	ContactInPersonID           null.Int    `db:"contact_in_person_id"`
	ContactInEmail              string      `db:"contact_in_email"`
	ContactInURL                string      `db:"contact_in_url"`
	ContactOutPersonID          null.Int    `db:"contact_out_person_id"`
	ContactOutEmail             string      `db:"contact_out_email"`
	ContactOutURL               string      `db:"contact_out_url"`
	CourseCatalogueTextFr       string      `db:"course_catalogue_text_fr"`
	CourseCatalogueTextEn       string      `db:"course_catalogue_text_en"`
	CourseCatalogueURLFr        string      `db:"course_catalogue_url_fr"`
	CourseCatalogueURLEn        string      `db:"course_catalogue_url_en"`
}

func (r umeRow) ume() ume.UME {
	return ume.UME{
		ID:                          r.ID,
		FacultyID:                   r.FacultyID,
		FacultyAcronym:              r.FacultyAcronym,
		EntityID:                    intPtr(r.EntityID),
		EntityAcronym:               r.EntityAcronym.String,
		AcademicResponsibleID:       intPtr(r.AcademicResponsibleID),
		AdministrativeResponsibleID: intPtr(r.AdministrativeResponsibleID),
		ContactInPersonID:           intPtr(r.ContactInPersonID),
		ContactInEmail:              r.ContactInEmail,
		ContactInURL:                r.ContactInURL,
		ContactOutPersonID:          intPtr(r.ContactOutPersonID),
		ContactOutEmail:             r.ContactOutEmail,
		ContactOutURL:               r.ContactOutURL,
		CourseCatalogueTextFr:       r.CourseCatalogueTextFr,
		CourseCatalogueTextEn:       r.CourseCatalogueTextEn,
		CourseCatalogueURLFr:        r.CourseCatalogueURLFr,
		CourseCatalogueURLEn:        r.CourseCatalogueURLEn,
	}
}

func umeValues(u ume.UME) map[string]interface{} {
	return map[string]interface{}{
		"faculty_id":                    u.FacultyID,
		"entity_id":                     null.IntFromPtr(u.EntityID),
		"academic_responsible_id":       null.IntFromPtr(u.AcademicResponsibleID),
		"administrative_responsible_id": null.IntFromPtr(u.AdministrativeResponsibleID),
		"contact_in_person_id":          null.IntFromPtr(u.ContactInPersonID),
		"contact_in_email":              u.ContactInEmail,
		"contact_in_url":                u.ContactInURL,
		"contact_out_person_id":         null.IntFromPtr(u.ContactOutPersonID),
		"contact_out_email":             u.ContactOutEmail,
		"contact_out_url":               u.ContactOutURL,
		"course_catalogue_text_fr":      u.CourseCatalogueTextFr,
		"course_catalogue_text_en":      u.CourseCatalogueTextEn,
		"course_catalogue_url_fr":       u.CourseCatalogueURLFr,
		"course_catalogue_url_en":       u.CourseCatalogueURLEn,
	}
}

type umeRepository struct {
	repository
}

var _ ume.Repository = (*umeRepository)(nil)

func NewUMERepository(db core.DB) ume.Repository {
	return &umeRepository{repository{db: db}}
}

func (repo umeRepository) selectUMEs() sq.SelectBuilder {
	return psql.Select(
		"u.id", "u.faculty_id", "f.acronym AS faculty_acronym", "u.entity_id", "e.acronym AS entity_acronym",
		"u.academic_responsible_id", "u.administrative_responsible_id",
		"u.contact_in_person_id", "u.contact_in_email", "u.contact_in_url",
		"u.contact_out_person_id", "u.contact_out_email", "u.contact_out_url",
		"u.course_catalogue_text_fr", "u.course_catalogue_text_en", "u.course_catalogue_url_fr", "u.course_catalogue_url_en",
	).
		From("ucl_management_entity u").
		Join("entity f ON f.id = u.faculty_id").
		LeftJoin("entity e ON e.id = u.entity_id")
}

func (repo umeRepository) CheckUniqueness(ctx context.Context, facultyID int, entityID *int, excludedID int, exec ...core.DBExecutor) error {
	where := sq.And{sq.Eq{"faculty_id": facultyID}, sq.Eq{"entity_id": nil}}
	if entityID != nil {
		where[1] = sq.Eq{"entity_id": *entityID}
	}
	if excludedID != 0 {
		where = append(where, sq.NotEq{"id": excludedID})
	}
	var exists bool
	q := psql.Select("1").From("ucl_management_entity").Where(where).Prefix("SELECT EXISTS (").Suffix(")")
	if err := get(ctx, repo.getExec(exec), &exists, q); err != nil {
		return errors.Wrap(err, "checking ucl management entity uniqueness")
	}
	if exists {
		return ume.ErrUMEExists
	}
	return nil
}

func (repo umeRepository) CreateUME(ctx context.Context, u ume.UME, exec ...core.DBExecutor) (ume.UME, error) {
	id, err := insertID(ctx, repo.getExec(exec), psql.Insert("ucl_management_entity").SetMap(umeValues(u)))
	if err != nil {
		if isUniqueViolation(err) {
			return ume.UME{}, ume.ErrUMEExists
		}
		return ume.UME{}, errors.Wrap(err, "inserting ucl management entity")
	}
	return repo.GetUME(ctx, id, exec...)
}

func (repo umeRepository) GetUME(ctx context.Context, id int, exec ...core.DBExecutor) (ume.UME, error) {
	var r umeRow
	if err := get(ctx, repo.getExec(exec), &r, repo.selectUMEs().Where(sq.Eq{"u.id": id})); err != nil {
		return ume.UME{}, trapNoRowsErr(err, ume.ErrNotFound, "getting ucl management entity")
	}
	return r.ume(), nil
}

func (repo umeRepository) QueryUMEs(ctx context.Context, filter *ume.QueryFilter, exec ...core.DBExecutor) ([]ume.UME, error) {
	q := repo.selectUMEs().OrderBy("f.acronym", "e.acronym NULLS FIRST")
	if filter != nil {
		if filter.FacultyID != 0 {
			q = q.Where(sq.Eq{"u.faculty_id": filter.FacultyID})
		}
		if filter.EntityID != 0 {
			q = q.Where(sq.Eq{"u.entity_id": filter.EntityID})
		}
		if len(filter.EntityIDs) > 0 {
			q = q.Where(sq.Or{sq.Eq{"u.faculty_id": filter.EntityIDs}, sq.Eq{"u.entity_id": filter.EntityIDs}})
		}
	}

	var rows []umeRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying ucl management entities")
	}
	umes := make([]ume.UME, 0, len(rows))
	for _, r := range rows {
		umes = append(umes, r.ume())
	}
	return umes, nil
}

func (repo umeRepository) UpdateUME(ctx context.Context, u ume.UME, exec ...core.DBExecutor) (ume.UME, error) {
	res, err := execute(ctx, repo.getExec(exec), psql.Update("ucl_management_entity").SetMap(umeValues(u)).Where(sq.Eq{"id": u.ID}))
	if err = mustAffect(res, err, ume.ErrNotFound); err != nil {
		if isUniqueViolation(err) {
			return ume.UME{}, ume.ErrUMEExists
		}
		return ume.UME{}, trapNoRowsErr(err, ume.ErrNotFound, "updating ucl management entity")
	}
	return repo.GetUME(ctx, u.ID, exec...)
}

func (repo umeRepository) DeleteUME(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := execute(ctx, repo.getExec(exec), psql.Delete("ucl_management_entity").Where(sq.Eq{"id": id}))
	if err = mustAffect(res, err, ume.ErrNotFound); err != nil {
		return trapNoRowsErr(err, ume.ErrNotFound, "deleting ucl management entity")
	}
	return nil
}

func (repo umeRepository) HasPartnerships(ctx context.Context, entityID int, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	q := psql.Select("1").From("partnership").Where(sq.Eq{"ucl_entity_id": entityID}).Prefix("SELECT EXISTS (").Suffix(")")
	err := get(ctx, repo.getExec(exec), &exists, q)
	return exists, errors.Wrap(err, "checking ucl entity partnerships")
}
