// Package reference holds the lookup data partnerships are described with.
package reference

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

type (
	Continent struct {
		ID   int    `json:"id"`
		Code string `json:"code"`
		Name string `json:"name"`
	}

	Country struct {
		ID            int    `json:"id"`
		ISOCode       string `json:"iso_code"`
		Name          string `json:"name"`
		NameEn        string `json:"name_en"`
		ContinentID   *int   `json:"continent_id"`
		ContinentCode string `json:"continent_code,omitempty"`
	}

	EducationField struct {
		ID    int    `json:"id"`
		UUID  string `json:"uuid"`
		Code  string `json:"code"`
		Label string `json:"label"`
	}

	EducationLevel struct {
		Code  string `json:"code"`
		Label string `json:"label"`
	}

	// Offer is a training programme of a given academic year.
	Offer struct {
		ID           int    `json:"id"`
		UUID         string `json:"uuid"`
		Acronym      string `json:"acronym"`
		Title        string `json:"title"`
		TitleEn      string `json:"title_en"`
		AcademicYear int    `json:"academic_year"`
		EntityID     *int   `json:"entity_id"`
	}

	Tag struct {
		ID    int    `json:"id"`
		Value string `json:"value"`
	}

	MediaType struct {
		ID    int    `json:"id"`
		Code  string `json:"code"`
		Label string `json:"label"`
	}
)

// TagKind tells partnership tags from partner tags.
type TagKind string

const (
	PartnershipTag TagKind = "partnership_tag"
	PartnerTag     TagKind = "partner_tag"
)

// PhDLevel is the education level forced on doctorate partnership years.
const PhDLevel = "ISCED-8"

// SummaryTableMediaType is the media type of the agreement summary tables.
const SummaryTableMediaType = "summary-table"

// UsefulLinkMediaType is the media type of the links shown to outgoing students.
const UsefulLinkMediaType = "useful-link"

type CountryFilter struct {
	Search      string `query:"q"`
	ContinentID int    `query:"continent"`
	IDs         []int  `query:"id"`
	// HavingPartners keeps the countries of at least one partner address.
	HavingPartners bool   `query:"-"`
	Limit          uint64 `query:"limit"`
}

type OfferFilter struct {
	Search       string `query:"q"`
	AcademicYear int    `query:"academic_year"`
	EntityIDs    []int  `query:"entity"`
	IDs          []int  `query:"id"`
	Limit        uint64 `query:"limit"`
}

type SearchFilter struct {
	Search string `query:"q"`
	Limit  uint64 `query:"limit"`
}

type NewCountry struct {
	ISOCode       string `json:"iso_code" validate:"required,len=2,alpha"`
	Name          string `json:"name" validate:"required,max=80"`
	NameEn        string `json:"name_en" validate:"max=80"`
	ContinentCode string `json:"continent_code" validate:"omitempty,len=2"`
}

func (nc *NewCountry) Validate(validate *validator.Validate) error {
	nc.ISOCode = strings.ToUpper(core.CleanString(nc.ISOCode))
	nc.Name = core.CleanString(nc.Name)
	nc.NameEn = core.CleanString(nc.NameEn)
	nc.ContinentCode = strings.ToUpper(core.CleanString(nc.ContinentCode))
	return validate.Struct(nc)
}

type NewEducationField struct {
	Code  string `json:"code" validate:"required,max=30"`
	Label string `json:"label" validate:"required,max=255"`
}

func (nf *NewEducationField) Validate(validate *validator.Validate) error {
	nf.Code = core.CleanString(nf.Code)
	nf.Label = core.CleanString(nf.Label)
	return validate.Struct(nf)
}

type NewOffer struct {
	Acronym      string `json:"acronym" validate:"required,max=40"`
	Title        string `json:"title" validate:"max=255"`
	TitleEn      string `json:"title_en" validate:"max=255"`
	AcademicYear int    `json:"academic_year" validate:"required,min=1900"`
	EntityID     *int   `json:"entity_id"`
}

func (no *NewOffer) Validate(validate *validator.Validate) error {
	no.Acronym = strings.ToUpper(core.CleanString(no.Acronym))
	no.Title = core.CleanString(no.Title)
	no.TitleEn = core.CleanString(no.TitleEn)
	return validate.Struct(no)
}
