package entity

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

// Entity types
const (
	TypeSector             = "SECTOR"
	TypeFaculty            = "FACULTY"
	TypeSchool             = "SCHOOL"
	TypeInstitute          = "INSTITUTE"
	TypeDoctoralCommission = "DOCTORAL_COMMISSION"
	TypeLogisticsEntity    = "LOGISTICS_ENTITY"
	TypePlatform           = "PLATFORM"
)

var AllTypes = []string{
	TypeSector, TypeFaculty, TypeSchool, TypeInstitute, TypeDoctoralCommission, TypeLogisticsEntity, TypePlatform,
}

// Entity is an organizational unit of the university (sector, faculty, school, institute, ...).
type Entity struct {
	ID        int        `json:"id"`
	UUID      string     `json:"uuid"`
	Acronym   string     `json:"acronym"`
	Title     string     `json:"title"`
	Type      string     `json:"type"`
	ParentID  *int       `json:"parent_id"`
	Website   string     `json:"website"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// IsActive reports whether the entity exists at the given date.
func (e Entity) IsActive(at time.Time) bool {
	at = core.DateOf(at)
	if e.StartDate.After(at) {
		return false
	}
	return e.EndDate == nil || !e.EndDate.Before(at)
}

// NewEntity contains information needed to create a new Entity.
type NewEntity struct {
	Acronym   string     `json:"acronym" validate:"required,max=20"`
	Title     string     `json:"title" validate:"max=255"`
	Type      string     `json:"type" validate:"omitempty,oneof=SECTOR FACULTY SCHOOL INSTITUTE DOCTORAL_COMMISSION LOGISTICS_ENTITY PLATFORM"`
	ParentID  *int       `json:"parent_id"`
	Website   string     `json:"website" validate:"omitempty,url"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

func (ne *NewEntity) Validate(validate *validator.Validate) error {
	ne.Acronym = core.CleanString(ne.Acronym)
	ne.Title = core.CleanString(ne.Title)
	if err := validate.Struct(ne); err != nil {
		return err
	}
	if ne.EndDate != nil && !ne.StartDate.IsZero() && ne.EndDate.Before(ne.StartDate) {
		return core.NewFieldError("end_date", core.StartDateGtEndDateText)
	}
	return nil
}

type GetFilter struct {
	ID      int
	UUID    string
	Acronym string
}

type QueryFilter struct {
	Search   string   `query:"q"`
	IDs      []int    `query:"id"`
	Types    []string `query:"type"`
	ParentID int      `query:"parent"`
	// WithUME keeps entities that are the faculty or entity of a UCL management entity.
	WithUME bool   `query:"with_ume"`
	Limit   uint64 `query:"limit"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Label is the acronym path used in selects, e.g. "SST / EPL / ELEC". The root is not displayed.
func Label(path []string) string {
	if len(path) <= 1 {
		return strings.Join(path, "")
	}
	return strings.Join(path[1:], " / ")
}
