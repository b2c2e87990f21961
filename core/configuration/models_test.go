package configuration

import (
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
)

func TestConfiguration_CreationMinYear(t *testing.T) {
	conf := Default()
	conf.CreationUpdateMaxDate = DayMonth{Day: 15, Month: 3}

	tests := []struct {
		name  string
		today time.Time
		want  academic.Year
	}{
		{name: "before limit", today: core.Date(2023, time.January, 10), want: 2024},
		{name: "on limit", today: core.Date(2023, time.March, 15), want: 2024},
		{name: "after limit", today: core.Date(2023, time.March, 16), want: 2025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conf.CreationMinYear(tt.today))
		})
	}
}

func TestConfiguration_APIYear(t *testing.T) {
	conf := Default()
	conf.APIMaxDate = DayMonth{Day: 1, Month: 6}

	tests := []struct {
		name  string
		today time.Time
		want  academic.Year
	}{
		{name: "before limit", today: core.Date(2024, time.February, 1), want: 2023},
		{name: "after limit", today: core.Date(2024, time.July, 1), want: 2024},
		{name: "after limit, new academic year", today: core.Date(2024, time.October, 1), want: 2025},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conf.APIYear(tt.today))
		})
	}
}

func TestDayMonth_In(t *testing.T) {
	assert.Equal(t, core.Date(2023, time.February, 28), DayMonth{Day: 29, Month: 2}.In(2023))
	assert.Equal(t, core.Date(2024, time.February, 29), DayMonth{Day: 29, Month: 2}.In(2024))
	assert.Equal(t, core.Date(2023, time.April, 30), DayMonth{Day: 31, Month: 4}.In(2023))
}

func TestUpdateConfiguration_Validate(t *testing.T) {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	tests := []struct {
		name    string
		data    UpdateConfiguration
		wantErr bool
	}{
		{
			name: "valid",
			data: UpdateConfiguration{DayMonth{29, 2}, DayMonth{31, 12}, " ADRI@uclouvain.be "},
		},
		{
			name:    "invalid day",
			data:    UpdateConfiguration{DayMonth{31, 4}, DayMonth{31, 12}, "adri@uclouvain.be"},
			wantErr: true,
		},
		{
			name:    "invalid email",
			data:    UpdateConfiguration{DayMonth{1, 4}, DayMonth{31, 12}, "adri"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "adri@uclouvain.be", tt.data.EmailNotificationTo)
			}
		})
	}
}
