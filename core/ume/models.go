// Package ume holds the UCL management entities: per faculty responsible persons and
// contact information shown on the public portal.
package ume

import (
	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

type UME struct {
	ID                          int    `json:"id"`
	FacultyID                   int    `json:"faculty_id"`
	FacultyAcronym              string `json:"faculty_acronym,omitempty"`
	EntityID                    *int   `json:"entity_id"`
	EntityAcronym               string `json:"entity_acronym,omitempty"`
	AcademicResponsibleID       *int   `json:"academic_responsible_id"`
	AdministrativeResponsibleID *int   `json:"administrative_responsible_id"`
	ContactInPersonID           *int   `json:"contact_in_person_id"`
	ContactInEmail              string `json:"contact_in_email"`
	ContactInURL                string `json:"contact_in_url"`
	ContactOutPersonID          *int   `json:"contact_out_person_id"`
	ContactOutEmail             string `json:"contact_out_email"`
	ContactOutURL               string `json:"contact_out_url"`
	CourseCatalogueTextFr       string `json:"course_catalogue_text_fr"`
	CourseCatalogueTextEn       string `json:"course_catalogue_text_en"`
	CourseCatalogueURLFr        string `json:"course_catalogue_url_fr"`
	CourseCatalogueURLEn        string `json:"course_catalogue_url_en"`
}

// ManagedEntityID is the entity partnerships of this UME are attached to.
func (u UME) ManagedEntityID() int {
	if u.EntityID != nil {
		return *u.EntityID
	}
	return u.FacultyID
}

func (u UME) String() string {
	if u.EntityAcronym == "" {
		return u.FacultyAcronym
	}
	return u.FacultyAcronym + " " + u.EntityAcronym
}

func (u UME) IsContactInDefined() bool {
	return u.ContactInPersonID != nil || u.ContactInEmail != "" || u.ContactInURL != ""
}

func (u UME) IsContactOutDefined() bool {
	return u.ContactOutPersonID != nil || u.ContactOutEmail != "" || u.ContactOutURL != ""
}

// UMEData contains the editable fields of a UME.
type UMEData struct {
	FacultyID                   int    `json:"faculty_id" validate:"required"`
	EntityID                    *int   `json:"entity_id"`
	AcademicResponsibleID       *int   `json:"academic_responsible_id"`
	AdministrativeResponsibleID *int   `json:"administrative_responsible_id"`
	ContactInPersonID           *int   `json:"contact_in_person_id"`
	ContactInEmail              string `json:"contact_in_email" validate:"omitempty,email,max=255"`
	ContactInURL                string `json:"contact_in_url" validate:"omitempty,url,max=255"`
	ContactOutPersonID          *int   `json:"contact_out_person_id"`
	ContactOutEmail             string `json:"contact_out_email" validate:"omitempty,email,max=255"`
	ContactOutURL               string `json:"contact_out_url" validate:"omitempty,url,max=255"`
	CourseCatalogueTextFr       string `json:"course_catalogue_text_fr"`
	CourseCatalogueTextEn       string `json:"course_catalogue_text_en"`
	CourseCatalogueURLFr        string `json:"course_catalogue_url_fr" validate:"omitempty,url,max=255"`
	CourseCatalogueURLEn        string `json:"course_catalogue_url_en" validate:"omitempty,url,max=255"`
}

func (d *UMEData) Validate(validate *validator.Validate) error {
	d.ContactInEmail = core.CleanString(d.ContactInEmail, true /* lower */)
	d.ContactOutEmail = core.CleanString(d.ContactOutEmail, true /* lower */)
	d.ContactInURL = core.CleanString(d.ContactInURL)
	d.ContactOutURL = core.CleanString(d.ContactOutURL)
	d.CourseCatalogueURLFr = core.CleanString(d.CourseCatalogueURLFr)
	d.CourseCatalogueURLEn = core.CleanString(d.CourseCatalogueURLEn)
	return validate.Struct(d)
}

func (d UMEData) apply(u *UME) {
	u.FacultyID = d.FacultyID
	u.EntityID = d.EntityID
	u.AcademicResponsibleID = d.AcademicResponsibleID
	u.AdministrativeResponsibleID = d.AdministrativeResponsibleID
	u.ContactInPersonID = d.ContactInPersonID
	u.ContactInEmail = d.ContactInEmail
	u.ContactInURL = d.ContactInURL
	u.ContactOutPersonID = d.ContactOutPersonID
	u.ContactOutEmail = d.ContactOutEmail
	u.ContactOutURL = d.ContactOutURL
	u.CourseCatalogueTextFr = d.CourseCatalogueTextFr
	u.CourseCatalogueTextEn = d.CourseCatalogueTextEn
	u.CourseCatalogueURLFr = d.CourseCatalogueURLFr
	u.CourseCatalogueURLEn = d.CourseCatalogueURLEn
}

// QueryFilter filters UMEs; EntityIDs restricts to UMEs whose faculty or entity is listed.
type QueryFilter struct {
	FacultyID int
	EntityID  int
	EntityIDs []int
}

func (f *QueryFilter) Match(u UME) bool {
	if f == nil {
		return true
	}
	if f.FacultyID != 0 && u.FacultyID != f.FacultyID {
		return false
	}
	if f.EntityID != 0 && (u.EntityID == nil || *u.EntityID != f.EntityID) {
		return false
	}
	if len(f.EntityIDs) > 0 {
		if core.ContainsInt(f.EntityIDs, u.FacultyID) {
			return true
		}
		return u.EntityID != nil && core.ContainsInt(f.EntityIDs, *u.EntityID)
	}
	return true
}
