package partnership

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
)

var (
	// custom validation tags & texts
	partnershipTypeTag  = "partnershiptype"
	partnershipTypeText = "invalid partnership type"

	noMultilateralTag  = "no_multilateral_for_mobility"
	noMultilateralText = "a mobility partnership has a single partner entity"

	requiredIfMultiTag  = "required_if_multilateral"
	requiredIfMultiText = "this field is required when there are several partner entities"

	requiredForTypeTag  = "required_for_type"
	requiredForTypeText = "this field is required for this partnership type"

	startDateGtEndDateTag = "start_date_gt_end_date"
	startYearAfterEndTag  = "start_date_after_end_date"

	startAfterFromTag  = "start_date_after_from_date"
	startAfterFromText = "start_date_after_from_date"

	fromAfterEndTag  = "from_date_after_end_date"
	fromAfterEndText = "from_date_after_end_date"

	levelsEmptyTag  = "education_levels_empty_errors"
	levelsEmptyText = "education_levels_empty_errors"

	agreementYearsTag = "agreement_years"
)

// InitValidators registers the partnership validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(partnershipTypeTag, partnershipTypeValidation)
	core.RegisterCustomTranslation(validate, translator, partnershipTypeTag, partnershipTypeText)

	validate.RegisterStructValidation(partnershipStructValidation, PartnershipData{})
	core.RegisterCustomTranslation(validate, translator, noMultilateralTag, noMultilateralText)
	core.RegisterCustomTranslation(validate, translator, requiredIfMultiTag, requiredIfMultiText)
	core.RegisterCustomTranslation(validate, translator, requiredForTypeTag, requiredForTypeText)
	core.RegisterCustomTranslation(validate, translator, startDateGtEndDateTag, core.StartDateGtEndDateText)
	core.RegisterCustomTranslation(validate, translator, startYearAfterEndTag, core.StartYearAfterEndText)
	core.RegisterCustomTranslation(validate, translator, startAfterFromTag, startAfterFromText)
	core.RegisterCustomTranslation(validate, translator, fromAfterEndTag, fromAfterEndText)
	core.RegisterCustomTranslation(validate, translator, levelsEmptyTag, levelsEmptyText)

	validate.RegisterStructValidation(agreementStructValidation, AgreementData{})
	core.RegisterCustomTranslation(validate, translator, agreementYearsTag, core.StartYearAfterEndText)
}

func partnershipTypeValidation(fl validator.FieldLevel) bool {
	return ptype.IsValid(fl.Field().String())
}

// partnershipStructValidation checks the cross-field rules depending on the partnership type.
func partnershipStructValidation(sl validator.StructLevel) {
	data := sl.Current().Interface().(PartnershipData)

	if data.Type == ptype.Mobility && len(data.PartnerEntities) > 1 {
		sl.ReportError(data.PartnerEntities, "partner_entities", "PartnerEntities", noMultilateralTag, "")
	}
	if len(data.PartnerEntities) > 1 && data.ProjectAcronym == "" {
		sl.ReportError(data.ProjectAcronym, "project_acronym", "ProjectAcronym", requiredIfMultiTag, "")
	}
	if data.SupervisorID == nil && data.Type != ptype.Mobility && data.Type != ptype.Course {
		sl.ReportError(data.SupervisorID, "supervisor_id", "SupervisorID", requiredForTypeTag, "")
	}

	if ptype.HasDates(data.Type) {
		if data.StartDate == nil {
			sl.ReportError(data.StartDate, "start_date", "StartDate", requiredForTypeTag, "")
		}
		if data.EndDate == nil {
			sl.ReportError(data.EndDate, "end_date", "EndDate", requiredForTypeTag, "")
		}
		if data.StartDate != nil && data.EndDate != nil && data.StartDate.After(*data.EndDate) {
			sl.ReportError(data.StartDate, "start_date", "StartDate", startDateGtEndDateTag, "")
		}
	}

	if ptype.HasYears(data.Type) {
		if data.StartAcademicYear == nil {
			sl.ReportError(data.StartAcademicYear, "start_academic_year", "StartAcademicYear", requiredForTypeTag, "")
		}
		if data.EndAcademicYear == nil {
			sl.ReportError(data.EndAcademicYear, "end_academic_year", "EndAcademicYear", requiredForTypeTag, "")
		}
		start, from, end := data.StartAcademicYear, data.FromAcademicYear, data.EndAcademicYear
		if start != nil && end != nil && *start > *end {
			sl.ReportError(start, "start_academic_year", "StartAcademicYear", startYearAfterEndTag, "")
		}
		if start != nil && from != nil && *start > *from {
			sl.ReportError(from, "from_academic_year", "FromAcademicYear", startAfterFromTag, "")
		}
		if from != nil && end != nil && *from > *end {
			sl.ReportError(from, "from_academic_year", "FromAcademicYear", fromAfterEndTag, "")
		}
	}

	yd := data.Year
	if data.Type == ptype.Mobility && (yd.IsSMS || yd.IsSMP) && len(yd.EducationLevels) == 0 {
		sl.ReportError(yd.EducationLevels, "education_levels", "EducationLevels", levelsEmptyTag, "")
	}
}

func agreementStructValidation(sl validator.StructLevel) {
	data := sl.Current().Interface().(AgreementData)

	if data.StartAcademicYear != nil && data.EndAcademicYear != nil && *data.StartAcademicYear > *data.EndAcademicYear {
		sl.ReportError(data.StartAcademicYear, "start_academic_year", "StartAcademicYear", agreementYearsTag, "")
	}
	if data.StartDate != nil && data.EndDate != nil && data.StartDate.After(*data.EndDate) {
		sl.ReportError(data.StartDate, "start_date", "StartDate", startDateGtEndDateTag, "")
	}
}

// RelationData links a partner entity to a partnership.
type RelationData struct {
	PartnerID               int    `json:"partner_id" validate:"required"`
	PartnerEntityID         int    `json:"partner_entity_id" validate:"required"`
	DiplomaWithUCLByPartner string `json:"diploma_with_ucl_by_partner" validate:"omitempty,oneof=UNIQUE SEPARATED NO_CODIPLOMA"`
	DiplomaProdByPartner    bool   `json:"diploma_prod_by_partner"`
	SupplementProdByPartner string `json:"supplement_prod_by_partner" validate:"omitempty,oneof=YES NO SHARED"`
	PartnerReferent         bool   `json:"partner_referent"`
}

// YearData contains the editable fields of the academic years of a partnership.
type YearData struct {
	IsSMS           bool     `json:"is_sms"`
	IsSMP           bool     `json:"is_smp"`
	IsSMST          bool     `json:"is_smst"`
	IsSTA           bool     `json:"is_sta"`
	IsSTT           bool     `json:"is_stt"`
	Eligible        *bool    `json:"eligible"`
	FundingSourceID *int     `json:"funding_source_id"`
	ProgramID       *int     `json:"funding_program_id"`
	FundingTypeID   *int     `json:"funding_type_id"`
	Description     string   `json:"description"`
	UCLStatus       string   `json:"ucl_status" validate:"omitempty,oneof=coordinator partner"`
	IDNumber        string   `json:"id_number" validate:"max=200"`
	ProjectTitle    string   `json:"project_title" validate:"max=200"`
	EducationFields []int    `json:"education_fields"`
	EducationLevels []string `json:"education_levels"`
	EntityIDs       []int    `json:"entities"`
	OfferIDs        []int    `json:"offers"`
}

// PartnershipData contains the editable fields of a Partnership and of its years.
type PartnershipData struct {
	Type                string         `json:"partnership_type" validate:"required,partnershiptype"`
	UCLEntityID         int            `json:"ucl_entity_id" validate:"required"`
	SupervisorID        *int           `json:"supervisor_id"`
	PartnerEntities     []RelationData `json:"partner_entities" validate:"required,min=1,dive"`
	MissionIDs          []int          `json:"mission_ids"`
	SubtypeID           *int           `json:"subtype_id"`
	Description         string         `json:"description"`
	Comment             string         `json:"comment"`
	IsPublic            *bool          `json:"is_public"`
	Tags                []string       `json:"tags"`
	StartDate           *time.Time     `json:"start_date"`
	EndDate             *time.Time     `json:"end_date"`
	ProjectAcronym      string         `json:"project_acronym" validate:"max=255"`
	UCLReference        bool           `json:"ucl_reference"`
	AllStudent          bool           `json:"all_student"`
	DiplomaByUCL        string         `json:"diploma_by_ucl" validate:"omitempty,oneof=UNIQUE SEPARATED NO_CODIPLOMA"`
	DiplomaProdByUCL    bool           `json:"diploma_prod_by_ucl"`
	SupplementProdByUCL string         `json:"supplement_prod_by_ucl" validate:"omitempty,oneof=YES NO SHARED"`
	StartAcademicYear   *int           `json:"start_academic_year"`
	FromAcademicYear    *int           `json:"from_academic_year"`
	EndAcademicYear     *int           `json:"end_academic_year"`
	Year                YearData       `json:"year"`
}

func (d *PartnershipData) Validate(validate *validator.Validate) error {
	d.Type = core.CleanString(d.Type)
	d.Description = core.CleanString(d.Description)
	d.Comment = core.CleanString(d.Comment)
	d.ProjectAcronym = core.CleanString(d.ProjectAcronym)
	d.Tags = cleanTags(d.Tags)
	if d.StartDate != nil {
		start := core.DateOf(*d.StartDate)
		d.StartDate = &start
	}
	if d.EndDate != nil {
		end := core.DateOf(*d.EndDate)
		d.EndDate = &end
	}
	d.Year.Description = core.CleanString(d.Year.Description)
	d.Year.IDNumber = core.CleanString(d.Year.IDNumber)
	d.Year.ProjectTitle = core.CleanString(d.Year.ProjectTitle)
	return validate.Struct(d)
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = core.CleanString(t)
		if t != "" && !core.ContainsString(cleaned, t) {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}

// AgreementData contains the editable fields of an Agreement.
// Years are required for partnerships bounded by years, dates for the others.
type AgreementData struct {
	StartAcademicYear *int       `json:"start_academic_year" form:"start_academic_year"`
	EndAcademicYear   *int       `json:"end_academic_year" form:"end_academic_year"`
	StartDate         *time.Time `json:"start_date" form:"start_date"`
	EndDate           *time.Time `json:"end_date" form:"end_date"`
	Status            string     `json:"status" form:"status" validate:"omitempty,oneof=WAITING VALIDATED REFUSED"`
	Comment           string     `json:"comment" form:"comment"`
}

func (d *AgreementData) Validate(validate *validator.Validate) error {
	d.Status = core.CleanString(d.Status)
	d.Comment = core.CleanString(d.Comment)
	return validate.Struct(d)
}
