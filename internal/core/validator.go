package core

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"profilehub/internal/types"
)

// Validator wraps go-playground/validator with the entitlement-specific tags:
//
//	subscription_level  a known SubscriptionLevel
//	team_role           a known TeamRole
//	month               a YYYY-MM month key
//	usage_cost          a decimal cost accepted by types.ValidateUsageCost
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator builds a Validator that reports fields by their JSON names.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "subscription_level", func(fl validator.FieldLevel) bool {
		return types.SubscriptionLevel(fl.Field().String()).IsValid()
	})
	mustRegister(v, "team_role", func(fl validator.FieldLevel) bool {
		return types.TeamRole(fl.Field().String()).IsValid()
	})
	mustRegister(v, "month", func(fl validator.FieldLevel) bool {
		_, err := time.Parse("2006-01", fl.Field().String())
		return err == nil
	})

	// Decimals are validated through their string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	mustRegister(v, "usage_cost", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && types.ValidateUsageCost(d) == nil
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic("core: registering validation " + tag + ": " + err.Error())
	}
}

// ValidateStruct validates s and returns a validation_failed AppError whose
// details map each offending field to the rule it broke.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		v.logger.Error("struct validation could not run", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return types.NewAppErrorWithDetails(types.ErrCodeValidationFailed, "request validation failed", err,
		map[string]any{"fields": fields})
}
