package validators

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
)

// maxMinorUnits bounds amounts to kobo precision.
const maxMinorUnits = 2

var engine = buildEngine()

func buildEngine() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	// Decimals are validated through their canonical string form so the
	// string tags (required, amount) apply to them.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "amount", validAmount)
	mustRegister(v, "payment_method", validPaymentMethod)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// validAmount accepts positive decimals with at most two fractional digits.
func validAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Equal(d.Round(maxMinorUnits))
}

func validPaymentMethod(fl validator.FieldLevel) bool {
	_, err := enums.ParsePaymentMethod(fl.Field().String())
	return err == nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "numeric":
		return "must contain digits only"
	case "email":
		return "must be a valid email"
	case "amount":
		return "must be a positive amount with at most 2 decimal places"
	case "payment_method":
		return "must be one of: wallet, points"
	}
	return "is invalid"
}
