package configuration

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
)

const DefaultNotificationEmail = "programmes.mobilite@uclouvain.be"

// DayMonth is a yearly recurring limit date.
type DayMonth struct {
	Day   int `json:"day" db:"day" validate:"min=1,max=31"`
	Month int `json:"month" db:"month" validate:"min=1,max=12"`
}

// In returns the limit date in the given calendar year.
// A day overflowing the month (e.g. Feb 29th in a common year) is clamped to the last day of the month.
func (dm DayMonth) In(year int) time.Time {
	lastDay := time.Date(year, time.Month(dm.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := dm.Day
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, time.Month(dm.Month), day, 0, 0, 0, 0, time.UTC)
}

// isValid checks the day exists in the month, in a leap year.
func (dm DayMonth) isValid() bool {
	d := time.Date(2000, time.Month(dm.Month), dm.Day, 0, 0, 0, 0, time.UTC)
	return d.Day() == dm.Day
}

// Configuration is the institution-wide singleton configuration.
type Configuration struct {
	CreationUpdateMaxDate DayMonth `json:"partnership_creation_update_max_date"`
	APIMaxDate            DayMonth `json:"partnership_api_max_date"`
	EmailNotificationTo   string   `json:"email_notification_to"`
}

func Default() Configuration {
	return Configuration{
		CreationUpdateMaxDate: DayMonth{Day: 31, Month: 12},
		APIMaxDate:            DayMonth{Day: 31, Month: 12},
		EmailNotificationTo:   DefaultNotificationEmail,
	}
}

// CreationMinYear returns the first academic year a non-ADRI manager may create or update a partnership for.
func (c Configuration) CreationMinYear(today time.Time) academic.Year {
	today = core.DateOf(today)
	if !today.After(c.CreationUpdateMaxDate.In(today.Year())) {
		return academic.Year(today.Year() + 1)
	}
	return academic.Year(today.Year() + 2)
}

// APIYear returns the academic year exposed by the public portal API.
func (c Configuration) APIYear(today time.Time) academic.Year {
	today = core.DateOf(today)
	current := academic.Containing(today)
	if !today.After(c.APIMaxDate.In(today.Year())) {
		return current
	}
	return current.Next()
}

// UpdateConfiguration defines what information may be provided to modify the Configuration.
type UpdateConfiguration struct {
	CreationUpdateMaxDate DayMonth `json:"partnership_creation_update_max_date"`
	APIMaxDate            DayMonth `json:"partnership_api_max_date"`
	EmailNotificationTo   string   `json:"email_notification_to" validate:"required,email"`
}

func (uc *UpdateConfiguration) Validate(validate *validator.Validate) error {
	uc.EmailNotificationTo = core.CleanString(uc.EmailNotificationTo, true /* lower */)
	return validate.Struct(uc)
}

var (
	invalidDateTag  = "daymonth"
	invalidDateText = "invalid date"
)

// InitValidators registers the configuration validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(dayMonthValidation, DayMonth{})
	core.RegisterCustomTranslation(validate, translator, invalidDateTag, invalidDateText)
}

func dayMonthValidation(sl validator.StructLevel) {
	dm := sl.Current().Interface().(DayMonth)
	if dm.Month >= 1 && dm.Month <= 12 && !dm.isValid() {
		sl.ReportError(dm.Day, "day", "Day", invalidDateTag, "")
	}
}
