package partner

import (
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
)

func newValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate, translator
}

func boolPtr(b bool) *bool { return &b }

func TestPartnerData_Validate(t *testing.T) {
	validate, translator := newValidator()
	end := core.Date(2019, time.December, 31)

	base := func() PartnerData {
		return PartnerData{
			Name:        "  Université de Lyon ",
			PartnerType: TypeAcademicPartner,
			Website:     "https://univ-lyon.fr",
			StartDate:   core.Date(2020, time.January, 1),
			IsNonprofit: boolPtr(true),
			IsPublic:    boolPtr(true),
			Email:       "Contact@Univ-Lyon.fr",
			Phone:       "+33 4 00 00 00",
			ContactType: "EPLUS-EDU-HEI",
			Tags:        []string{" erasmus", "erasmus", ""},
			Address:     contact.Address{City: " Lyon "},
		}
	}

	tests := []struct {
		name       string
		data       func() PartnerData
		wantFields map[string]string
	}{
		{name: "valid", data: base},
		{
			name: "not ies without mandatory fields",
			data: func() PartnerData {
				pd := base()
				pd.IsNonprofit, pd.IsPublic = nil, nil
				pd.Email, pd.Phone, pd.ContactType = "", "", ""
				return pd
			},
			wantFields: map[string]string{
				"is_nonprofit": requiredIfNotPICIESText,
				"is_public":    requiredIfNotPICIESText,
				"email":        requiredIfNotPICIESText,
				"phone":        requiredIfNotPICIESText,
				"contact_type": requiredIfNotPICIESText,
			},
		},
		{
			name: "ies with pic code",
			data: func() PartnerData {
				pd := base()
				pd.PICCode, pd.IsIES = "123456789", boolPtr(true)
				pd.IsNonprofit, pd.IsPublic = nil, nil
				pd.Email, pd.Phone, pd.ContactType = "", "", ""
				return pd
			},
		},
		{
			name: "start after end",
			data: func() PartnerData {
				pd := base()
				pd.EndDate = &end
				return pd
			},
			wantFields: map[string]string{"start_date": core.StartDateGtEndDateText},
		},
		{
			name: "invalid types",
			data: func() PartnerData {
				pd := base()
				pd.PartnerType = "UNIVERSITY"
				pd.ContactType = "EPLUS-NOPE"
				return pd
			},
			wantFields: map[string]string{
				"partner_type": partnerTypeText,
				"contact_type": contactTypeText,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pd := tt.data()
			err := pd.Validate(validate)
			if tt.wantFields == nil {
				require.NoError(t, err)
				assert.Equal(t, "Université de Lyon", pd.Name)
				assert.Equal(t, []string{"erasmus"}, pd.Tags)
				assert.Equal(t, "Lyon", pd.Address.City)
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantFields, core.TranslateErrors(vErrs, translator))
		})
	}
}

func TestEntityData_Validate(t *testing.T) {
	validate, _ := newValidator()

	ed := EntityData{Name: "  ", ContactIn: &contact.ContactData{LastName: "Doe"}}
	assert.Error(t, ed.Validate(validate))

	ed.Name = "Faculté des sciences"
	assert.NoError(t, ed.Validate(validate))

	ed.ContactOut = &contact.ContactData{}
	assert.Error(t, ed.Validate(validate))
}
