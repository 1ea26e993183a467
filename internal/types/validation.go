package types

import (
	"github.com/go-playground/validator/v10"

	"github.com/sigforge/sigforge/internal/jose"
)

var Validate *validator.Validate

func init() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("algorithm", func(fl validator.FieldLevel) bool {
		_, err := jose.ParseAlgorithm(fl.Field().String())
		return err == nil
	})

	_ = Validate.RegisterValidation("curve", func(fl validator.FieldLevel) bool {
		_, err := jose.CurveByName(fl.Field().String())
		return err == nil
	})
}
