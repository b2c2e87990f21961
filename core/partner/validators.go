package partner

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

var (
	partnerTypeTag  = "partnertype"
	partnerTypeText = "invalid partner type"

	contactTypeTag  = "contacttype"
	contactTypeText = "invalid contact type"

	// reported on fields required when the partner is not an IES with a PIC code
	requiredIfNotPICIESTag  = "required_if_not_pic_ies"
	requiredIfNotPICIESText = "mandatory_if_not_pic_ies"

	startDateGtEndDateTag = "start_date_gt_end_date"
)

// InitValidators registers the partner validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(partnerTypeTag, func(fl validator.FieldLevel) bool {
		return core.ContainsString(AllTypes, fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, partnerTypeTag, partnerTypeText)

	_ = validate.RegisterValidation(contactTypeTag, func(fl validator.FieldLevel) bool {
		return core.ContainsString(ContactTypes, fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, contactTypeTag, contactTypeText)

	validate.RegisterStructValidation(partnerStructValidation, PartnerData{})
	core.RegisterCustomTranslation(validate, translator, requiredIfNotPICIESTag, requiredIfNotPICIESText)
	core.RegisterCustomTranslation(validate, translator, startDateGtEndDateTag, core.StartDateGtEndDateText)
}

func partnerStructValidation(sl validator.StructLevel) {
	pd, ok := sl.Current().Interface().(PartnerData)
	if !ok {
		return
	}

	if pd.PICCode == "" || pd.IsIES == nil || !*pd.IsIES {
		if pd.IsNonprofit == nil {
			sl.ReportError(pd.IsNonprofit, "is_nonprofit", "IsNonprofit", requiredIfNotPICIESTag, "")
		}
		if pd.IsPublic == nil {
			sl.ReportError(pd.IsPublic, "is_public", "IsPublic", requiredIfNotPICIESTag, "")
		}
		if pd.Email == "" {
			sl.ReportError(pd.Email, "email", "Email", requiredIfNotPICIESTag, "")
		}
		if pd.Phone == "" {
			sl.ReportError(pd.Phone, "phone", "Phone", requiredIfNotPICIESTag, "")
		}
		if pd.ContactType == "" {
			sl.ReportError(pd.ContactType, "contact_type", "ContactType", requiredIfNotPICIESTag, "")
		}
	}

	if pd.EndDate != nil && !pd.StartDate.IsZero() && pd.StartDate.After(*pd.EndDate) {
		sl.ReportError(pd.StartDate, "start_date", "StartDate", startDateGtEndDateTag, "")
	}
}
