// Package portal shapes the partnerships published on the public website.
package portal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
)

// Mobility types
const (
	MobilityStudent = "student"
	MobilityStaff   = "staff"
)

// Statuses of the partnerships which are not mobilities.
const (
	StatusOngoing  = "status_ongoing"
	StatusFinished = "status_finished"
	StatusArchived = "status_archived"
)

// archiveDelay is the time after which a finished partnership is archived.
const archiveDelay = 5 * 365 * 24 * time.Hour

type (
	ValueLabel struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}

	CountryConfiguration struct {
		Name    string   `json:"name"`
		ISOCode string   `json:"iso_code"`
		Cities  []string `json:"cities"`
	}

	ContinentConfiguration struct {
		Name      string                 `json:"name"`
		Countries []CountryConfiguration `json:"countries"`
	}

	// Configuration lists the choices of the portal search form.
	Configuration struct {
		Continents       []ContinentConfiguration `json:"continents"`
		Partners         []ValueLabel             `json:"partners"`
		UCLUniversities  []ValueLabel             `json:"ucl_universities"`
		EducationFields  []ValueLabel             `json:"education_fields"`
		EducationLevels  []ValueLabel             `json:"education_levels"`
		Fundings         []funding.SourceNode     `json:"fundings"`
		PartnershipTypes []ValueLabel             `json:"partnership_types"`
		Tags             []string                 `json:"tags"`
		PartnerTags      []string                 `json:"partner_tags"`
		Offers           []ValueLabel             `json:"offers"`
	}
)

type (
	// Location is a GeoJSON point.
	Location struct {
		Type        string     `json:"type"`
		Coordinates [2]float64 `json:"coordinates"`
	}

	PartnerItem struct {
		UUID              string    `json:"uuid"`
		Name              string    `json:"name"`
		City              string    `json:"city"`
		Country           string    `json:"country"`
		CountryISO        string    `json:"country_iso"`
		Location          *Location `json:"location"`
		PartnershipsCount int       `json:"partnerships_count"`
	}

	PartnerDetail struct {
		UUID        string `json:"uuid"`
		Name        string `json:"name"`
		Website     string `json:"website"`
		ErasmusCode string `json:"erasmus_code"`
		PartnerType string `json:"partner_type"`
		City        string `json:"city"`
		Country     string `json:"country"`
		CountryISO  string `json:"country_iso"`
	}

	Entity struct {
		Acronym string `json:"acronym"`
		Title   string `json:"title"`
	}

	Contact struct {
		Title     *string `json:"title"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Phone     *string `json:"phone"`
		Email     *string `json:"email"`
	}

	Link struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}

	Funding struct {
		Name string  `json:"name"`
		URL  *string `json:"url"`
	}

	Status struct {
		Status     string `json:"status"`
		ValidYears string `json:"valid_years,omitempty"`
		StartDate  string `json:"start_date,omitempty"`
		EndDate    string `json:"end_date,omitempty"`
	}

	CatalogueEntry struct {
		Text string `json:"text"`
		URL  string `json:"url"`
	}

	// Partnership is a published partnership, seen through one of its partner entities.
	Partnership struct {
		UUID            string        `json:"uuid"`
		Partner         PartnerDetail `json:"partner"`
		Supervisor      *string       `json:"supervisor"`
		Type            string        `json:"type"`
		PartnershipType string        `json:"partnership_type"`
		UCLSector       string        `json:"ucl_sector"`
		UCLFaculty      *Entity       `json:"ucl_faculty"`
		UCLEntity       Entity        `json:"ucl_entity"`
		IsSMS           bool          `json:"is_sms"`
		IsSMP           bool          `json:"is_smp"`
		IsSMST          bool          `json:"is_smst"`
		IsSTA           bool          `json:"is_sta"`
		IsSTT           bool          `json:"is_stt"`

		Missions       string   `json:"missions"`
		Subtype        *string  `json:"subtype"`
		Description    string   `json:"description"`
		IDNumber       string   `json:"id_number"`
		ProjectTitle   string   `json:"project_title"`
		FundingProgram *Funding `json:"funding_program"`

		EducationFields     []string `json:"education_fields"`
		Status              Status   `json:"status"`
		PartnerEntity       *string  `json:"partner_entity"`
		Medias              []Link   `json:"medias"`
		PartnerEntities     []string `json:"partner_entities"`
		BilateralAgreements []Link   `json:"bilateral_agreements"`

		OutEducationLevels  []string                  `json:"out_education_levels"`
		OutEntities         []Entity                  `json:"out_entities"`
		OutUniversityOffers []string                  `json:"out_university_offers"`
		OutContact          *Contact                  `json:"out_contact"`
		OutPortal           *string                   `json:"out_portal"`
		OutFunding          *Funding                  `json:"out_funding"`
		OutPartnerContacts  []Contact                 `json:"out_partner_contacts"`
		OutCourseCatalogue  map[string]CatalogueEntry `json:"out_course_catalogue"`
		OutSummaryTables    []Link                    `json:"out_summary_tables"`
		OutUsefulLinks      []Link                    `json:"out_useful_links"`

		InContact *Contact `json:"in_contact"`
		InPortal  *string  `json:"in_portal"`

		StaffContact         *Contact  `json:"staff_contact"`
		StaffFunding         *Funding  `json:"staff_funding"`
		StaffPartnerContacts []Contact `json:"staff_partner_contacts"`

		// sort keys
		partnerName string
		countryName string
		city        string
		entityPath  string
		typeOrder   string
		subjectArea string
	}
)

// Filter narrows the published partnerships and partners; zero fields are ignored.
type Filter struct {
	Continent      string   `query:"continent"`
	Country        string   `query:"country"`
	City           string   `query:"city"`
	Partner        string   `query:"partner"`
	UCLEntity      string   `query:"ucl_entity"`
	WithChildren   bool     `query:"with_children"`
	Supervisor     int      `query:"supervisor"`
	EducationField string   `query:"education_field"`
	EducationLevel string   `query:"education_level"`
	MobilityTypes  []string `query:"mobility_type"`
	FundingSource  int      `query:"funding_source"`
	FundingProgram int      `query:"funding_program"`
	FundingType    int      `query:"funding_type"`
	Type           string   `query:"type"`
	Tag            string   `query:"tag"`
	PartnerTag     string   `query:"partner_tag"`
	Offer          string   `query:"offer"`
	Ordering       string   `query:"ordering"`
	core.Pagination
}

func (f *Filter) Clean() {
	if f == nil {
		return
	}
	f.Continent = core.CleanString(f.Continent)
	f.Country = core.CleanString(f.Country)
	f.City = core.CleanString(f.City)
	f.Partner = core.CleanString(f.Partner, true)
	f.UCLEntity = core.CleanString(f.UCLEntity, true)
	f.EducationField = core.CleanString(f.EducationField, true)
	f.EducationLevel = core.CleanString(f.EducationLevel)
	f.Type = strings.ToUpper(core.CleanString(f.Type))
	f.Tag = core.CleanString(f.Tag)
	f.PartnerTag = core.CleanString(f.PartnerTag)
	f.Offer = core.CleanString(f.Offer, true)
	f.Ordering = core.CleanString(f.Ordering)
}

// matchYear reports whether the year row of the API year matches the filter.
// fieldID and offerID are the resolved EducationField and Offer, zero when unknown.
func (f *Filter) matchYear(y partnership.Year, fieldID, offerID int) bool {
	if f.EducationField != "" && !core.ContainsInt(y.EducationFields, fieldID) {
		return false
	}
	if f.EducationLevel != "" && !core.ContainsString(y.EducationLevels, f.EducationLevel) {
		return false
	}
	if f.Offer != "" && !core.ContainsInt(y.OfferIDs, offerID) {
		return false
	}
	// staff takes precedence when both types are asked
	switch {
	case core.ContainsString(f.MobilityTypes, MobilityStaff):
		if !y.HasST() {
			return false
		}
	case core.ContainsString(f.MobilityTypes, MobilityStudent):
		if !y.HasSM() {
			return false
		}
	}
	if f.FundingSource != 0 && (y.FundingSourceID == nil || *y.FundingSourceID != f.FundingSource) {
		return false
	}
	if f.FundingProgram != 0 && (y.ProgramID == nil || *y.ProgramID != f.FundingProgram) {
		return false
	}
	if f.FundingType != 0 && (y.FundingTypeID == nil || *y.FundingTypeID != f.FundingType) {
		return false
	}
	return true
}

// Orderings of the published partnerships
var partnershipOrderings = map[string]func(p *Partnership) string{
	"partner":      func(p *Partnership) string { return p.partnerName },
	"country_en":   func(p *Partnership) string { return p.countryName },
	"city":         func(p *Partnership) string { return p.city },
	"ucl_entity":   func(p *Partnership) string { return p.entityPath },
	"type":         func(p *Partnership) string { return p.typeOrder },
	"subject_area": func(p *Partnership) string { return p.subjectArea },
}

func sortPartnerships(items []Partnership, ordering string) {
	desc := strings.HasPrefix(ordering, "-")
	key, ok := partnershipOrderings[strings.TrimPrefix(ordering, "-")]
	if !ok {
		key, desc = partnershipOrderings["partner"], false
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := key(&items[i]), key(&items[j])
		if desc {
			return a > b
		}
		return a < b
	})
}

// Orderings of the published partners
var partnerOrderings = map[string]func(p *PartnerItem) string{
	"partner":    func(p *PartnerItem) string { return strings.ToLower(p.Name) },
	"country_en": func(p *PartnerItem) string { return p.CountryISO },
	"city":       func(p *PartnerItem) string { return strings.ToLower(p.City) },
}

func sortPartners(items []PartnerItem, ordering string) {
	desc := strings.HasPrefix(ordering, "-")
	key, ok := partnerOrderings[strings.TrimPrefix(ordering, "-")]
	if !ok {
		key, desc = partnerOrderings["partner"], false
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := key(&items[i]), key(&items[j])
		if desc {
			return a > b
		}
		return a < b
	})
}

// typeOrder sorts mobilities for students and staff first, then students only, then staff only.
func typeOrder(y partnership.Year) string {
	switch {
	case (y.IsSMS || y.IsSMP || y.IsSMST) && y.HasST():
		return "a-student-staff"
	case y.IsSMS || y.IsSMP || y.IsSMST:
		return "b-student"
	case y.HasST():
		return "c-staff"
	}
	return "d-none"
}

// IsPublished reports whether p appears on the portal for the academic year y:
// public, with a row for y, and covered by a validated agreement unless it is a project.
func IsPublished(p partnership.Partnership, y academic.Year) bool {
	if !p.IsPublic {
		return false
	}
	if _, ok := p.Year(y); !ok {
		return false
	}
	return p.Type == ptype.Project || p.HasValidAgreementIn(y)
}

// statusOf describes how far p is from its end.
func statusOf(p partnership.Partnership, y academic.Year, today time.Time) Status {
	if p.Type == ptype.Mobility {
		st := Status{Status: partnership.StatusValidated}
		if spans := p.ValidatedSpans(); len(spans) > 0 {
			// spans are merged and sorted
			st.ValidYears = fmt.Sprintf("%d-%d", y, spans[len(spans)-1].End+1)
		}
		return st
	}

	st := Status{Status: StatusOngoing}
	if end := lastValidatedEnd(p); end != nil {
		switch {
		case today.Before(*end):
			st.Status = StatusOngoing
		case today.Before(end.Add(archiveDelay)):
			st.Status = StatusFinished
		default:
			st.Status = StatusArchived
		}
	}
	if ptype.HasYears(p.Type) {
		if start, ok := p.StartAcademicYear(); ok {
			st.StartDate = start.String()
		}
		if end, ok := p.EndAcademicYear(); ok {
			st.EndDate = end.String()
		}
		return st
	}
	if p.StartDate != nil {
		st.StartDate = p.StartDate.Format("02/01/2006")
	}
	if p.EndDate != nil {
		st.EndDate = p.EndDate.Format("02/01/2006")
	}
	return st
}

func lastValidatedEnd(p partnership.Partnership) *time.Time {
	var end *time.Time
	for _, a := range p.Agreements {
		if a.IsValid() && a.EndDate != nil && (end == nil || a.EndDate.After(*end)) {
			end = a.EndDate
		}
	}
	return end
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
