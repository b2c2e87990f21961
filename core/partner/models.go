package partner

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
)

// Partner types
const (
	TypeAcademicPartner = "ACADEMIC_PARTNER"
	TypeResearchCenter  = "RESEARCH_CENTER"
	TypeEnterprise      = "ENTERPRISE"
	TypeHospital        = "HOSPITAL"
	TypeNGO             = "NGO"
	TypeEmbassy         = "EMBASSY"
	TypeOther           = "OTHER"
)

var AllTypes = []string{
	TypeAcademicPartner, TypeResearchCenter, TypeEnterprise, TypeHospital, TypeNGO, TypeEmbassy, TypeOther,
}

// ContactTypes are the Erasmus+ organisation categories.
var ContactTypes = []string{
	"EPLUS-EDU-HEI",
	"EPLUS-EDU-GEN-PRE",
	"EPLUS-EDU-GEN-PRI",
	"EPLUS-EDU-GEN-SEC",
	"EPLUS-EDU-VOC-SEC",
	"EPLUS-EDU-VOC-TER",
	"EPLUS-EDU-ADULT",
	"EPLUS-BODY-PUB-NAT",
	"EPLUS-BODY-PUB-REG",
	"EPLUS-BODY-PUB-LOC",
	"EPLUS-ENT-SME",
	"EPLUS-ENT-LARGE",
	"EPLUS-NGO",
	"EPLUS-FOUND",
	"EPLUS-SOCIAL",
	"EPLUS-RES",
	"EPLUS-YOUTH-COUNCIL",
	"EPLUS-ENGO",
	"EPLUS-NET-EU",
	"EPLUS-YOUTH-GROUP",
	"EPLUS-EURO-GROUP-COOP",
	"EPLUS-BODY-ACCRED",
	"EPLUS-BODY-CONS",
	"EPLUS-INTER",
	"EPLUS-SPORT-PARTIAL",
	"EPLUS-SPORT-FED",
	"EPLUS-SPORT-LEAGUE",
	"EPLUS-SPORT-CLUB",
	"OTH",
}

type Partner struct {
	ID            int             `json:"id"`
	UUID          string          `json:"uuid"`
	Name          string          `json:"name"`
	IsValid       bool            `json:"is_valid"`
	PartnerType   string          `json:"partner_type"`
	PICCode       string          `json:"pic_code"`
	ErasmusCode   string          `json:"erasmus_code"`
	IsIES         *bool           `json:"is_ies"`
	IsNonprofit   *bool           `json:"is_nonprofit"`
	IsPublic      *bool           `json:"is_public"`
	UseEgracons   bool            `json:"use_egracons"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	ContactType   string          `json:"contact_type"`
	Website       string          `json:"website"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
	NowKnownAsID  *int            `json:"now_known_as_id"`
	Comment       string          `json:"comment"`
	Address       contact.Address `json:"address"`
	ContinentCode string          `json:"continent,omitempty"`
	Tags          []string        `json:"tags"`
	AuthorID      *int            `json:"author_id"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsActif reports whether the partner organization is within its validity dates at `today`.
func (p Partner) IsActif(today time.Time) bool {
	today = core.DateOf(today)
	if !p.StartDate.IsZero() && today.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || !today.After(*p.EndDate)
}

// PartnerData contains the editable fields of a Partner.
type PartnerData struct {
	Name         string          `json:"name" validate:"required,max=255"`
	IsValid      bool            `json:"is_valid"`
	PartnerType  string          `json:"partner_type" validate:"required,partnertype"`
	PICCode      string          `json:"pic_code" validate:"max=255"`
	ErasmusCode  string          `json:"erasmus_code" validate:"max=255"`
	IsIES        *bool           `json:"is_ies"`
	IsNonprofit  *bool           `json:"is_nonprofit"`
	IsPublic     *bool           `json:"is_public"`
	UseEgracons  bool            `json:"use_egracons"`
	Email        string          `json:"email" validate:"omitempty,email,max=255"`
	Phone        string          `json:"phone" validate:"max=255"`
	ContactType  string          `json:"contact_type" validate:"omitempty,contacttype"`
	Website      string          `json:"website" validate:"required,url,max=255"`
	StartDate    time.Time       `json:"start_date" validate:"required"`
	EndDate      *time.Time      `json:"end_date"`
	NowKnownAsID *int            `json:"now_known_as_id"`
	Comment      string          `json:"comment"`
	Address      contact.Address `json:"address"`
	Tags         []string        `json:"tags"`
}

func (pd *PartnerData) Validate(validate *validator.Validate) error {
	pd.Name = core.CleanString(pd.Name)
	pd.PICCode = core.CleanString(pd.PICCode)
	pd.ErasmusCode = core.CleanString(pd.ErasmusCode)
	pd.Email = core.CleanString(pd.Email, true /* lower */)
	pd.Phone = core.CleanString(pd.Phone)
	pd.Website = core.CleanString(pd.Website)
	pd.StartDate = core.DateOf(pd.StartDate)
	if pd.EndDate != nil {
		end := core.DateOf(*pd.EndDate)
		pd.EndDate = &end
	}
	pd.Address.Clean()
	tags := pd.Tags[:0]
	for _, t := range pd.Tags {
		if t = core.CleanString(t); t != "" && !core.ContainsString(tags, t) {
			tags = append(tags, t)
		}
	}
	pd.Tags = tags
	return validate.Struct(pd)
}

// apply copies the editable fields onto p.
func (pd PartnerData) apply(p *Partner) {
	p.Name = pd.Name
	p.IsValid = pd.IsValid
	p.PartnerType = pd.PartnerType
	p.PICCode = pd.PICCode
	p.ErasmusCode = pd.ErasmusCode
	p.IsIES = pd.IsIES
	p.IsNonprofit = pd.IsNonprofit
	p.IsPublic = pd.IsPublic
	p.UseEgracons = pd.UseEgracons
	p.Email = pd.Email
	p.Phone = pd.Phone
	p.ContactType = pd.ContactType
	p.Website = pd.Website
	p.StartDate = pd.StartDate
	p.EndDate = pd.EndDate
	p.NowKnownAsID = pd.NowKnownAsID
	p.Comment = pd.Comment
	p.Address = pd.Address
	p.Tags = pd.Tags
}

// Entity is a department or service of a partner.
type Entity struct {
	ID         int              `json:"id"`
	UUID       string           `json:"uuid"`
	PartnerID  int              `json:"partner_id"`
	Name       string           `json:"name"`
	ParentID   *int             `json:"parent_id"`
	Comment    string           `json:"comment"`
	Address    contact.Address  `json:"address"`
	ContactIn  *contact.Contact `json:"contact_in"`
	ContactOut *contact.Contact `json:"contact_out"`
	AuthorID   int              `json:"author_id"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// EntityData contains the editable fields of a partner Entity.
type EntityData struct {
	Name       string               `json:"name" validate:"required,max=255"`
	ParentID   *int                 `json:"parent_id"`
	Comment    string               `json:"comment"`
	Address    contact.Address      `json:"address"`
	ContactIn  *contact.ContactData `json:"contact_in"`
	ContactOut *contact.ContactData `json:"contact_out"`
}

func (ed *EntityData) Validate(validate *validator.Validate) error {
	ed.Name = core.CleanString(ed.Name)
	ed.Address.Clean()
	if ed.ContactIn != nil {
		if err := ed.ContactIn.Validate(validate); err != nil {
			return err
		}
	}
	if ed.ContactOut != nil {
		if err := ed.ContactOut.Validate(validate); err != nil {
			return err
		}
	}
	return validate.Struct(ed)
}

// contactOf returns the contact built from data, keeping the ID of the current one.
func contactOf(current *contact.Contact, data *contact.ContactData) *contact.Contact {
	if data == nil {
		return nil
	}
	var id int
	if current != nil {
		id = current.ID
	}
	c := data.Contact(id)
	return &c
}

// EntityUsage tells what prevents a partner entity from being deleted.
type EntityUsage struct {
	HasPartnerships bool
	HasChildren     bool
}

// GetFilter selects a single Partner by its first non-zero field.
type GetFilter struct {
	ID   int
	UUID string
}

// QueryFilter contains the list filters of partners; zero fields are ignored.
type QueryFilter struct {
	Name          string    `query:"name"`
	PartnerType   string    `query:"partner_type"`
	PICCode       string    `query:"pic_code"`
	ErasmusCode   string    `query:"erasmus_code"`
	IsIES         *bool     `query:"is_ies"`
	IsValid       *bool     `query:"is_valid"`
	IsActif       *bool     `query:"is_actif"`
	Tags          []string  `query:"tags"`
	ContinentCode string    `query:"continent"`
	CountryID     int       `query:"country"`
	City          string    `query:"city"`
	IDs           []int     `query:"-"`
	Today         time.Time `query:"-"`
	core.Pagination
}

func (f *QueryFilter) Clean() {
	if f == nil {
		return
	}
	f.Name = core.CleanString(f.Name)
	f.PICCode = core.CleanString(f.PICCode)
	f.ErasmusCode = core.CleanString(f.ErasmusCode)
	f.City = core.CleanString(f.City)
	if f.Today.IsZero() {
		f.Today = core.Today()
	}
}

// Match applies the filter to an in-memory Partner.
func (f *QueryFilter) Match(p Partner) bool {
	if f == nil {
		return true
	}
	icontains := func(s, sub string) bool {
		return sub == "" || strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}
	switch {
	case !icontains(p.Name, f.Name),
		f.PartnerType != "" && p.PartnerType != f.PartnerType,
		!icontains(p.PICCode, f.PICCode),
		!icontains(p.ErasmusCode, f.ErasmusCode),
		f.IsIES != nil && (p.IsIES == nil || *p.IsIES != *f.IsIES),
		f.IsValid != nil && p.IsValid != *f.IsValid,
		f.IsActif != nil && p.IsActif(f.Today) != *f.IsActif,
		f.ContinentCode != "" && p.ContinentCode != f.ContinentCode,
		f.CountryID != 0 && (p.Address.CountryID == nil || *p.Address.CountryID != f.CountryID),
		f.City != "" && !strings.EqualFold(p.Address.City, f.City),
		len(f.IDs) > 0 && !core.ContainsInt(f.IDs, p.ID):
		return false
	}
	for _, t := range f.Tags {
		if !core.ContainsString(p.Tags, t) {
			return false
		}
	}
	return true
}

// Orderings maps the public ordering names to their columns.
var Orderings = map[string]string{
	"partner":      "name",
	"country":      "country_name",
	"erasmus_code": "erasmus_code",
	"partner_type": "partner_type",
	"city":         "address_city",
	"is_valid":     "is_valid",
	"is_actif":     "is_actif",
}
