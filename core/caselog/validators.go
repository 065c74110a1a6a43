package caselog

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/sumitkpand3y/log-book-api/core"
)

// RegisterValidators sets up the caselog-specific tags. Must be called once on
// the validator instance handed to NewService.
func RegisterValidators(validate *validator.Validate, trans ut.Translator) {
	// only DRAFT and SUBMITTED are acceptable as a creation status
	_ = validate.RegisterValidation("initialstatus", func(fl validator.FieldLevel) bool {
		st, ok := ParseStatus(fl.Field().String())
		return ok && (st == StatusDraft || st == StatusSubmitted)
	})
	core.RegisterCustomTranslation(validate, trans, "initialstatus", "{0} must be DRAFT or SUBMITTED")
}
