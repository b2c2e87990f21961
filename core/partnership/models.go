// Package partnership holds partnerships between UCL entities and partner entities,
// with their academic years, agreements, contacts and medias.
package partnership

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
)

// Agreement statuses
const (
	StatusWaiting   = "WAITING"
	StatusValidated = "VALIDATED"
	StatusRefused   = "REFUSED"
)

var AgreementStatuses = []string{StatusWaiting, StatusValidated, StatusRefused}

// Co-diplomation kinds
const (
	DiplomaUnique      = "UNIQUE"
	DiplomaSeparated   = "SEPARATED"
	DiplomaNoCodiploma = "NO_CODIPLOMA"
)

// Diploma supplement production
const (
	SupplementYes    = "YES"
	SupplementNo     = "NO"
	SupplementShared = "SHARED"
)

// UCL status in a project
const (
	UCLCoordinator = "coordinator"
	UCLPartner     = "partner"
)

// Mission is what a partnership is for (e.g. student mobility), restricted to some partnership types.
type Mission struct {
	ID    int      `json:"id"`
	Label string   `json:"label"`
	Code  string   `json:"code"`
	Types []string `json:"types"`
}

func (m Mission) AllowsType(t string) bool {
	return core.ContainsString(m.Types, t)
}

type Subtype struct {
	ID       int      `json:"id"`
	Label    string   `json:"label"`
	Code     string   `json:"code"`
	Types    []string `json:"types"`
	IsActive bool     `json:"is_active"`
}

func (s Subtype) AllowsType(t string) bool {
	return core.ContainsString(s.Types, t)
}

// PartnerSummary describes the partner of the first partner entity of a partnership.
type PartnerSummary struct {
	ID          int      `json:"id"`
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	PartnerType string   `json:"partner_type"`
	ErasmusCode string   `json:"erasmus_code"`
	UseEgracons bool     `json:"use_egracons"`
	IsActif     bool     `json:"is_actif"`
	City        string   `json:"city"`
	CountryID   *int     `json:"country_id"`
	CountryName string   `json:"country_name"`
	CountryISO  string   `json:"country_iso"`
	ContinentID *int     `json:"continent_id"`
	Tags        []string `json:"tags"`
}

// Relation links a partnership to one partner entity, with its co-diplomation attributes.
type Relation struct {
	ID                      int    `json:"id"`
	PartnerID               int    `json:"partner_id"`
	PartnerName             string `json:"partner_name"`
	PartnerEntityID         int    `json:"partner_entity_id"`
	PartnerEntityName       string `json:"partner_entity_name"`
	DiplomaWithUCLByPartner string `json:"diploma_with_ucl_by_partner"`
	DiplomaProdByPartner    bool   `json:"diploma_prod_by_partner"`
	SupplementProdByPartner string `json:"supplement_prod_by_partner"`
	PartnerReferent         bool   `json:"partner_referent"`
}

// Year holds the attributes of a partnership for one academic year.
type Year struct {
	ID              int           `json:"id"`
	PartnershipID   int           `json:"partnership_id"`
	AcademicYear    academic.Year `json:"academic_year"`
	IsSMS           bool          `json:"is_sms"`
	IsSMP           bool          `json:"is_smp"`
	IsSMST          bool          `json:"is_smst"`
	IsSTA           bool          `json:"is_sta"`
	IsSTT           bool          `json:"is_stt"`
	Eligible        bool          `json:"eligible"`
	FundingSourceID *int          `json:"funding_source_id"`
	ProgramID       *int          `json:"funding_program_id"`
	FundingTypeID   *int          `json:"funding_type_id"`
	Description     string        `json:"description"`
	UCLStatus       string        `json:"ucl_status"`
	IDNumber        string        `json:"id_number"`
	ProjectTitle    string        `json:"project_title"`
	EducationFields []int         `json:"education_fields"`
	EducationLevels []string      `json:"education_levels"`
	EntityIDs       []int         `json:"entities"`
	OfferIDs        []int         `json:"offers"`
}

// HasSM reports whether the year has student mobility.
func (y Year) HasSM() bool {
	return y.IsSMS || y.IsSMP || y.IsSMST
}

// HasST reports whether the year has staff mobility.
func (y Year) HasST() bool {
	return y.IsSTA || y.IsSTT
}

// PlannedActivity lists the mobility flags, e.g. "SMS, STA".
func (y Year) PlannedActivity() string {
	var activities []string
	for _, a := range []struct {
		set  bool
		name string
	}{
		{y.IsSMS, "SMS"}, {y.IsSMP, "SMP"}, {y.IsSMST, "SMST"}, {y.IsSTA, "STA"}, {y.IsSTT, "STT"},
	} {
		if a.set {
			activities = append(activities, a.name)
		}
	}
	return strings.Join(activities, ", ")
}

// Agreement is a signed document covering a range of years of a partnership.
type Agreement struct {
	ID                int           `json:"id"`
	PartnershipID     int           `json:"partnership_id"`
	StartAcademicYear academic.Year `json:"start_academic_year"`
	EndAcademicYear   academic.Year `json:"end_academic_year"`
	StartDate         *time.Time    `json:"start_date"`
	EndDate           *time.Time    `json:"end_date"`
	MediaID           int           `json:"media_id"`
	Media             *media.Media  `json:"media,omitempty"`
	Status            string        `json:"status"`
	Comment           string        `json:"comment"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Warnings          []string      `json:"warnings,omitempty"`
}

func (a Agreement) IsValid() bool {
	return a.Status == StatusValidated
}

func (a Agreement) Span() academic.Span {
	return academic.Span{Start: a.StartAcademicYear, End: a.EndAcademicYear}
}

// Covers reports whether the agreement starts before year starts and ends after it ends.
func (a Agreement) Covers(year academic.Year) bool {
	return a.Span().Covers(year)
}

// AgreementMediaFileName is the name given to the uploaded document of an agreement.
func AgreementMediaFileName(partnershipID, partnerID int, ext string) string {
	name := fmt.Sprintf("partnership_agreement_%d_%d", partnershipID, partnerID)
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return name
}

// AgreementSummary is an agreement listed along its partnership.
type AgreementSummary struct {
	Agreement
	PartnershipUUID  string         `json:"partnership_uuid"`
	PartnershipType  string         `json:"partnership_type"`
	UCLEntityID      int            `json:"ucl_entity_id"`
	UCLEntityPath    string         `json:"ucl_entity"`
	Partner          PartnerSummary `json:"partner"`
	PartnershipStart *time.Time     `json:"-"`
	PartnershipEnd   *time.Time     `json:"-"`
}

type Partnership struct {
	ID                  int            `json:"id"`
	UUID                string         `json:"uuid"`
	Type                string         `json:"partnership_type"`
	UCLEntityID         int            `json:"ucl_entity_id"`
	UCLEntityPath       string         `json:"ucl_entity"`
	SupervisorID        *int           `json:"supervisor_id"`
	SubtypeID           *int           `json:"subtype_id"`
	Subtype             *Subtype       `json:"subtype,omitempty"`
	MissionIDs          []int          `json:"mission_ids"`
	Missions            []Mission      `json:"missions"`
	Description         string         `json:"description"`
	Comment             string         `json:"comment"`
	IsPublic            bool           `json:"is_public"`
	StartDate           *time.Time     `json:"start_date"`
	EndDate             *time.Time     `json:"end_date"`
	ProjectAcronym      string         `json:"project_acronym"`
	UCLReference        bool           `json:"ucl_reference"`
	AllStudent          bool           `json:"all_student"`
	DiplomaByUCL        string         `json:"diploma_by_ucl"`
	DiplomaProdByUCL    bool           `json:"diploma_prod_by_ucl"`
	SupplementProdByUCL string         `json:"supplement_prod_by_ucl"`
	Tags                []string       `json:"tags"`
	Partner             PartnerSummary `json:"partner"`
	Relations           []Relation     `json:"partner_entities"`
	Years               []Year         `json:"years"`
	Agreements          []Agreement    `json:"agreements"`
	AuthorID            *int           `json:"author_id"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	// DefaultSupervisorID is the academic responsible of the UCL management entity of UCLEntityID.
	DefaultSupervisorID *int `json:"-"`
}

// IsMultilateral reports whether the partnership has more than one partner entity.
func (p Partnership) IsMultilateral() bool {
	return len(p.Relations) > 1
}

// PartnerEntityIDs returns the IDs of the linked partner entities.
func (p Partnership) PartnerEntityIDs() []int {
	ids := make([]int, 0, len(p.Relations))
	for _, r := range p.Relations {
		ids = append(ids, r.PartnerEntityID)
	}
	return ids
}

// SupervisorOrDefault returns the supervisor, falling back to the UCL management entity academic responsible.
func (p Partnership) SupervisorOrDefault() *int {
	if p.SupervisorID != nil {
		return p.SupervisorID
	}
	return p.DefaultSupervisorID
}

func (p Partnership) sortedYears() []Year {
	years := make([]Year, len(p.Years))
	copy(years, p.Years)
	sort.Slice(years, func(i, j int) bool { return years[i].AcademicYear < years[j].AcademicYear })
	return years
}

// StartAcademicYear returns the first year row, if any.
func (p Partnership) StartAcademicYear() (academic.Year, bool) {
	if len(p.Years) == 0 {
		return 0, false
	}
	return p.sortedYears()[0].AcademicYear, true
}

// EndAcademicYear returns the last year row, if any.
func (p Partnership) EndAcademicYear() (academic.Year, bool) {
	if len(p.Years) == 0 {
		return 0, false
	}
	years := p.sortedYears()
	return years[len(years)-1].AcademicYear, true
}

// Year returns the row of the academic year y.
func (p Partnership) Year(y academic.Year) (Year, bool) {
	for _, yr := range p.Years {
		if yr.AcademicYear == y {
			return yr, true
		}
	}
	return Year{}, false
}

// FormYear is the row whose values prefill an update: the row of year y, else the last row.
func (p Partnership) FormYear(y academic.Year) (Year, bool) {
	if yr, ok := p.Year(y); ok {
		return yr, true
	}
	if len(p.Years) == 0 {
		return Year{}, false
	}
	years := p.sortedYears()
	return years[len(years)-1], true
}

// StartPartnership is the start of the partnership: its start date, or the start of its first year.
func (p Partnership) StartPartnership() *time.Time {
	if ptype.HasDates(p.Type) {
		return p.StartDate
	}
	if y, ok := p.StartAcademicYear(); ok {
		start := y.Start()
		return &start
	}
	return nil
}

// EndPartnership is the end of the partnership: its end date, or the end of its last year.
func (p Partnership) EndPartnership() *time.Time {
	if ptype.HasDates(p.Type) {
		return p.EndDate
	}
	if y, ok := p.EndAcademicYear(); ok {
		end := y.End()
		return &end
	}
	return nil
}

// ValidatedSpans returns the merged year spans of the validated agreements.
func (p Partnership) ValidatedSpans() []academic.Span {
	var spans []academic.Span
	for _, a := range p.Agreements {
		if a.IsValid() {
			spans = append(spans, a.Span())
		}
	}
	return academic.MergeSpans(spans)
}

// IsValid reports whether the partnership has a validated agreement. Projects are always valid.
func (p Partnership) IsValid() bool {
	if p.Type == ptype.Project {
		return true
	}
	for _, a := range p.Agreements {
		if a.IsValid() {
			return true
		}
	}
	return false
}

// IsYearValid reports whether a validated agreement covers the academic year.
func (p Partnership) IsYearValid(y academic.Year) bool {
	if p.Type == ptype.Project {
		return true
	}
	for _, s := range p.ValidatedSpans() {
		if s.Covers(y) {
			return true
		}
	}
	return false
}

// ValidYears returns the academic years of the year rows covered by a validated agreement.
func (p Partnership) ValidYears() []academic.Year {
	var years []academic.Year
	for _, yr := range p.sortedYears() {
		if p.IsYearValid(yr.AcademicYear) {
			years = append(years, yr.AcademicYear)
		}
	}
	return years
}

// HasMissingValidYears reports whether some year rows are not covered by a validated agreement.
func (p Partnership) HasMissingValidYears() bool {
	if !ptype.HasYears(p.Type) {
		return false
	}
	for _, yr := range p.Years {
		if !p.IsYearValid(yr.AcademicYear) {
			return true
		}
	}
	return false
}

// lastValidAgreement returns the validated agreement ending the latest.
func (p Partnership) lastValidAgreement() (Agreement, bool) {
	var (
		last  Agreement
		found bool
	)
	for _, a := range p.Agreements {
		if !a.IsValid() {
			continue
		}
		if !found || a.EndAcademicYear > last.EndAcademicYear ||
			(a.EndAcademicYear == last.EndAcademicYear && laterDate(a.EndDate, last.EndDate)) {
			last, found = a, true
		}
	}
	return last, found
}

func laterDate(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	return b == nil || a.After(*b)
}

// ValidityEnd describes until when the partnership is valid, according to its type.
func (p Partnership) ValidityEnd() string {
	switch p.Type {
	case ptype.Project:
		if p.EndDate == nil {
			return ""
		}
		return p.EndDate.Format("02/01/2006")
	case ptype.Mobility:
		if a, ok := p.lastValidAgreement(); ok {
			return a.EndAcademicYear.String()
		}
	default:
		if a, ok := p.lastValidAgreement(); ok && a.EndDate != nil {
			return a.EndDate.Format("02/01/2006")
		}
	}
	return ""
}

// HasValidAgreementIn reports whether a validated agreement covers the academic year.
func (p Partnership) HasValidAgreementIn(y academic.Year) bool {
	for _, a := range p.Agreements {
		if a.IsValid() && a.Covers(y) {
			return true
		}
	}
	return false
}

// HasAgreementIn reports whether any agreement covers the academic year.
func (p Partnership) HasAgreementIn(y academic.Year) bool {
	for _, a := range p.Agreements {
		if a.Covers(y) {
			return true
		}
	}
	return false
}

// LastAgreementEnd returns the last end year of all the agreements.
func (p Partnership) LastAgreementEnd() (academic.Year, bool) {
	var (
		end   academic.Year
		found bool
	)
	for _, a := range p.Agreements {
		if !found || a.EndAcademicYear > end {
			end, found = a.EndAcademicYear, true
		}
	}
	return end, found
}

// IsOngoingAt reports whether the dates of the partnership contain t.
func (p Partnership) IsOngoingAt(t time.Time) bool {
	return p.StartDate != nil && p.EndDate != nil && !p.StartDate.After(t) && !p.EndDate.Before(t)
}

type GetFilter struct {
	ID   int
	UUID string
}

// Special dates filters
const (
	SpecialDatesOngoing  = "ongoing"
	SpecialDatesStopping = "stopping"
)

// QueryFilter narrows partnership lists; zero fields are ignored.
type QueryFilter struct {
	IDs                []int      `query:"id"`
	UCLEntity          int        `query:"ucl_entity"`
	UCLEntityWithChild bool       `query:"ucl_entity_with_child"`
	EducationLevel     string     `query:"education_level"`
	EducationField     int        `query:"education_field"`
	YearsEntity        int        `query:"years_entity"`
	UniversityOffer    int        `query:"university_offer"`
	Partner            int        `query:"partner"`
	PartnerEntity      int        `query:"partner_entity"`
	PartnerType        string     `query:"partner_type"`
	PartnerTags        []string   `query:"partner_tags"`
	ErasmusCode        string     `query:"erasmus_code"`
	UseEgracons        *bool      `query:"use_egracons"`
	City               string     `query:"city"`
	Country            int        `query:"country"`
	Continent          int        `query:"continent"`
	IsSMS              *bool      `query:"is_sms"`
	IsSMP              *bool      `query:"is_smp"`
	IsSMST             *bool      `query:"is_smst"`
	IsSTA              *bool      `query:"is_sta"`
	IsSTT              *bool      `query:"is_stt"`
	PartnershipType    string     `query:"partnership_type"`
	Subtype            int        `query:"subtype"`
	Supervisor         int        `query:"supervisor"`
	Tags               []string   `query:"tags"`
	FundingSource      int        `query:"funding_source"`
	FundingProgram     int        `query:"funding_program"`
	FundingType        int        `query:"funding_type"`
	PartnershipIn      *int       `query:"partnership_in"`
	EndingIn           *int       `query:"partnership_ending_in"`
	ValidIn            *int       `query:"partnership_valid_in"`
	NotValidIn         *int       `query:"partnership_not_valid_in"`
	WithNoAgreementsIn *int       `query:"partnership_with_no_agreements_in"`
	SpecialDatesType   string     `query:"partnership_special_dates_type"`
	SpecialDatesFrom   *time.Time `query:"partnership_special_dates_0"`
	SpecialDatesTo     *time.Time `query:"partnership_special_dates_1"`
	Comment            string     `query:"comment"`
	IsPublic           *bool      `query:"is_public"`

	// UCLEntityIDs is the expansion of UCLEntity, its descendants included when UCLEntityWithChild.
	UCLEntityIDs []int `query:"-"`

	core.Pagination
}

func (qf *QueryFilter) Clean() {
	if qf == nil {
		return
	}
	qf.ErasmusCode = core.CleanString(qf.ErasmusCode)
	qf.City = core.CleanString(qf.City)
	qf.Comment = core.CleanString(qf.Comment)
	qf.EducationLevel = core.CleanString(qf.EducationLevel)
	if qf.SpecialDatesType != SpecialDatesOngoing && qf.SpecialDatesType != SpecialDatesStopping {
		qf.SpecialDatesType = ""
	}
	if qf.SpecialDatesType != "" && qf.SpecialDatesFrom == nil {
		qf.SpecialDatesType = ""
	}
	if qf.UCLEntity != 0 && len(qf.UCLEntityIDs) == 0 {
		qf.UCLEntityIDs = []int{qf.UCLEntity}
	}
}

// Match applies the filter to a single partnership, with its years, agreements and partner loaded.
func (qf *QueryFilter) Match(p Partnership) bool {
	if qf == nil {
		return true
	}
	if len(qf.IDs) > 0 && !core.ContainsInt(qf.IDs, p.ID) {
		return false
	}
	if len(qf.UCLEntityIDs) > 0 && !core.ContainsInt(qf.UCLEntityIDs, p.UCLEntityID) {
		return false
	}
	if !qf.matchPartner(p) || !qf.matchYears(p) || !qf.matchAgreements(p) {
		return false
	}
	if qf.PartnershipType != "" && p.Type != qf.PartnershipType {
		return false
	}
	if qf.Subtype != 0 && (p.SubtypeID == nil || *p.SubtypeID != qf.Subtype) {
		return false
	}
	if qf.Supervisor != 0 {
		sup := p.SupervisorOrDefault()
		if sup == nil || *sup != qf.Supervisor {
			return false
		}
	}
	if len(qf.Tags) > 0 && !anyString(p.Tags, qf.Tags) {
		return false
	}
	if qf.Comment != "" && !strings.Contains(strings.ToLower(p.Comment), strings.ToLower(qf.Comment)) {
		return false
	}
	if qf.IsPublic != nil && p.IsPublic != *qf.IsPublic {
		return false
	}
	return qf.matchSpecialDates(p.StartDate, p.EndDate)
}

func (qf *QueryFilter) matchPartner(p Partnership) bool {
	pt := p.Partner
	if qf.Partner != 0 && !hasRelation(p, func(r Relation) bool { return r.PartnerID == qf.Partner }) {
		return false
	}
	if qf.PartnerEntity != 0 && !hasRelation(p, func(r Relation) bool { return r.PartnerEntityID == qf.PartnerEntity }) {
		return false
	}
	if qf.PartnerType != "" && pt.PartnerType != qf.PartnerType {
		return false
	}
	if len(qf.PartnerTags) > 0 && !anyString(pt.Tags, qf.PartnerTags) {
		return false
	}
	if qf.ErasmusCode != "" && !strings.Contains(strings.ToLower(pt.ErasmusCode), strings.ToLower(qf.ErasmusCode)) {
		return false
	}
	if qf.UseEgracons != nil && pt.UseEgracons != *qf.UseEgracons {
		return false
	}
	if qf.City != "" && !strings.EqualFold(pt.City, qf.City) {
		return false
	}
	if qf.Country != 0 && (pt.CountryID == nil || *pt.CountryID != qf.Country) {
		return false
	}
	if qf.Continent != 0 && (pt.ContinentID == nil || *pt.ContinentID != qf.Continent) {
		return false
	}
	return true
}

// matchYears requires one year row matching all the year criteria.
func (qf *QueryFilter) matchYears(p Partnership) bool {
	if !qf.hasYearCriteria() {
		return true
	}
	for _, y := range p.Years {
		if qf.matchYear(y) {
			return true
		}
	}
	return false
}

func (qf *QueryFilter) hasYearCriteria() bool {
	return qf.EducationLevel != "" || qf.EducationField != 0 || qf.YearsEntity != 0 || qf.UniversityOffer != 0 ||
		qf.IsSMS != nil || qf.IsSMP != nil || qf.IsSMST != nil || qf.IsSTA != nil || qf.IsSTT != nil ||
		qf.FundingSource != 0 || qf.FundingProgram != 0 || qf.FundingType != 0
}

func (qf *QueryFilter) matchYear(y Year) bool {
	if qf.EducationLevel != "" && !core.ContainsString(y.EducationLevels, qf.EducationLevel) {
		return false
	}
	if qf.EducationField != 0 && !core.ContainsInt(y.EducationFields, qf.EducationField) {
		return false
	}
	// a year without entities or offers is open to all of them
	if qf.YearsEntity != 0 && len(y.EntityIDs) > 0 && !core.ContainsInt(y.EntityIDs, qf.YearsEntity) {
		return false
	}
	if qf.UniversityOffer != 0 && len(y.OfferIDs) > 0 && !core.ContainsInt(y.OfferIDs, qf.UniversityOffer) {
		return false
	}
	for _, f := range []struct {
		want *bool
		got  bool
	}{
		{qf.IsSMS, y.IsSMS}, {qf.IsSMP, y.IsSMP}, {qf.IsSMST, y.IsSMST}, {qf.IsSTA, y.IsSTA}, {qf.IsSTT, y.IsSTT},
	} {
		if f.want != nil && *f.want != f.got {
			return false
		}
	}
	if qf.FundingSource != 0 && !intPtrIs(y.FundingSourceID, qf.FundingSource) {
		return false
	}
	if qf.FundingProgram != 0 && !intPtrIs(y.ProgramID, qf.FundingProgram) {
		return false
	}
	if qf.FundingType != 0 && !intPtrIs(y.FundingTypeID, qf.FundingType) {
		return false
	}
	return true
}

func (qf *QueryFilter) matchAgreements(p Partnership) bool {
	if qf.PartnershipIn != nil && !p.HasAgreementIn(academic.Year(*qf.PartnershipIn)) {
		return false
	}
	if qf.EndingIn != nil {
		end, ok := p.LastAgreementEnd()
		if !ok || end != academic.Year(*qf.EndingIn) {
			return false
		}
	}
	if qf.ValidIn != nil && !p.HasValidAgreementIn(academic.Year(*qf.ValidIn)) {
		return false
	}
	if qf.NotValidIn != nil {
		y := academic.Year(*qf.NotValidIn)
		if !p.HasAgreementIn(y) || p.HasValidAgreementIn(y) {
			return false
		}
	}
	if qf.WithNoAgreementsIn != nil {
		y := academic.Year(*qf.WithNoAgreementsIn)
		if _, ok := p.Year(y); !ok || p.HasAgreementIn(y) {
			return false
		}
	}
	return true
}

// matchSpecialDates filters on partnership (or agreement) dates.
// ongoing: the period contains the first date, or the second one when given.
// stopping: the end date falls between both dates.
func (qf *QueryFilter) matchSpecialDates(start, end *time.Time) bool {
	if qf.SpecialDatesType == "" || qf.SpecialDatesFrom == nil {
		return true
	}
	if start == nil || end == nil {
		return qf.SpecialDatesType == SpecialDatesStopping && end != nil && inRange(*end, qf.SpecialDatesFrom, qf.SpecialDatesTo)
	}
	contains := func(t time.Time) bool { return !start.After(t) && !end.Before(t) }
	switch qf.SpecialDatesType {
	case SpecialDatesOngoing:
		if qf.SpecialDatesTo == nil {
			return contains(*qf.SpecialDatesFrom)
		}
		return contains(*qf.SpecialDatesFrom) || contains(*qf.SpecialDatesTo)
	case SpecialDatesStopping:
		return inRange(*end, qf.SpecialDatesFrom, qf.SpecialDatesTo)
	}
	return true
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	return to == nil || !t.After(*to)
}

// AgreementFilter narrows the agreements list: the partnership filter, on agreement dates, plus a status.
type AgreementFilter struct {
	QueryFilter
	Status string `query:"status"`
}

func (af *AgreementFilter) Clean() {
	if af == nil {
		return
	}
	af.QueryFilter.Clean()
	af.Status = core.CleanString(af.Status)
	if !core.ContainsString(AgreementStatuses, af.Status) {
		af.Status = ""
	}
}

// MatchAgreement applies the agreement-specific criteria; the partnership is matched with QueryFilter.Match.
func (af *AgreementFilter) MatchAgreement(a Agreement) bool {
	if af == nil {
		return true
	}
	if af.Status != "" && a.Status != af.Status {
		return false
	}
	return af.matchSpecialDates(a.StartDate, a.EndDate)
}

func hasRelation(p Partnership, fn func(Relation) bool) bool {
	for _, r := range p.Relations {
		if fn(r) {
			return true
		}
	}
	return false
}

func anyString(values, wanted []string) bool {
	for _, w := range wanted {
		if core.ContainsString(values, w) {
			return true
		}
	}
	return false
}

func intPtrIs(p *int, v int) bool {
	return p != nil && *p == v
}

// Orderings maps the public ordering names of partnership lists to sort keys.
var Orderings = map[string][]string{
	"partner": {"partner_name"},
	"city":    {"city"},
	"ucl":     {"ucl_entity"},
	"country": {"country_name", "city", "partner_name"},
}

// ExpandOrdering translates public orderings to sort keys, defaulting to country. Unknown names are dropped.
func ExpandOrdering(ordering []core.DBOrdering) []core.DBOrdering {
	var out []core.DBOrdering
	for _, o := range ordering {
		for _, key := range Orderings[o.Field] {
			out = append(out, core.DBOrdering{Field: key, Ascending: o.Ascending})
		}
	}
	if len(out) == 0 {
		for _, key := range Orderings["country"] {
			out = append(out, core.DBOrdering{Field: key, Ascending: true})
		}
	}
	return out
}

// SortKey returns the value of a sort key of a partnership.
func SortKey(p Partnership, key string) string {
	switch key {
	case "partner_name":
		return strings.ToLower(p.Partner.Name)
	case "city":
		return strings.ToLower(p.Partner.City)
	case "country_name":
		return strings.ToLower(p.Partner.CountryName)
	case "ucl_entity":
		return p.UCLEntityPath
	}
	return ""
}

// Sort orders partnerships in memory following sort keys from ExpandOrdering.
func Sort(partnerships []Partnership, ordering []core.DBOrdering) {
	sort.SliceStable(partnerships, func(i, j int) bool {
		for _, o := range ordering {
			a, b := SortKey(partnerships[i], o.Field), SortKey(partnerships[j], o.Field)
			if a == b {
				continue
			}
			if o.Ascending {
				return a < b
			}
			return a > b
		}
		return partnerships[i].ID < partnerships[j].ID
	})
}
