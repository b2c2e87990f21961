// Package contact holds people and postal addresses attached to partners and partnerships.
package contact

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

// Titles
const (
	TitleMister = "mr"
	TitleMadam  = "mme"
)

type Contact struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Society     string `json:"society"`
	Function    string `json:"function"`
	Phone       string `json:"phone"`
	MobilePhone string `json:"mobile_phone"`
	Fax         string `json:"fax"`
	Email       string `json:"email"`
	Comment     string `json:"comment"`
}

// FullName is "Title First LAST", skipping blanks.
func (c Contact) FullName() string {
	var parts []string
	switch c.Title {
	case TitleMister:
		parts = append(parts, "M.")
	case TitleMadam:
		parts = append(parts, "Mme")
	}
	if c.FirstName != "" {
		parts = append(parts, c.FirstName)
	}
	if c.LastName != "" {
		parts = append(parts, strings.ToUpper(c.LastName))
	}
	return strings.Join(parts, " ")
}

func (c Contact) IsEmpty() bool {
	return c == Contact{ID: c.ID}
}

// ContactData contains the editable fields of a Contact.
type ContactData struct {
	Title       string `json:"title" validate:"omitempty,oneof=mr mme"`
	FirstName   string `json:"first_name" validate:"max=255"`
	LastName    string `json:"last_name" validate:"required,max=255"`
	Society     string `json:"society" validate:"max=255"`
	Function    string `json:"function" validate:"max=255"`
	Phone       string `json:"phone" validate:"max=255"`
	MobilePhone string `json:"mobile_phone" validate:"max=255"`
	Fax         string `json:"fax" validate:"max=255"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
	Comment     string `json:"comment"`
}

func (cd *ContactData) Validate(validate *validator.Validate) error {
	cd.FirstName = core.CleanString(cd.FirstName)
	cd.LastName = core.CleanString(cd.LastName)
	cd.Email = core.CleanString(cd.Email, true /* lower */)
	return validate.Struct(cd)
}

func (cd ContactData) Contact(id int) Contact {
	return Contact{
		ID:          id,
		Title:       cd.Title,
		FirstName:   cd.FirstName,
		LastName:    cd.LastName,
		Society:     cd.Society,
		Function:    cd.Function,
		Phone:       cd.Phone,
		MobilePhone: cd.MobilePhone,
		Fax:         cd.Fax,
		Email:       cd.Email,
		Comment:     cd.Comment,
	}
}

// Address is a postal address with optional coordinates.
type Address struct {
	Name        string   `json:"name" validate:"max=255"`
	Street      string   `json:"street" validate:"max=255"`
	PostalCode  string   `json:"postal_code" validate:"max=20"`
	City        string   `json:"city" validate:"max=255"`
	CountryID   *int     `json:"country_id"`
	CountryName string   `json:"country_name,omitempty"`
	CountryISO  string   `json:"country_iso,omitempty"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// OneLineDisplay renders the address as "street, postal_code city, COUNTRY".
func (a Address) OneLineDisplay() string {
	var parts []string
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	city := strings.TrimSpace(a.PostalCode + " " + a.City)
	if city != "" {
		parts = append(parts, city)
	}
	if a.CountryName != "" {
		parts = append(parts, strings.ToUpper(a.CountryName))
	}
	return strings.Join(parts, ", ")
}

// Location returns the GeoJSON point of the address, if it has coordinates.
func (a Address) Location() *GeoPoint {
	if a.Latitude == nil || a.Longitude == nil {
		return nil
	}
	return &GeoPoint{Type: "Point", Coordinates: [2]float64{*a.Longitude, *a.Latitude}}
}

func (a *Address) Clean() {
	a.Name = core.CleanString(a.Name)
	a.Street = core.CleanString(a.Street)
	a.PostalCode = core.CleanString(a.PostalCode)
	a.City = core.CleanString(a.City)
}

type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}
