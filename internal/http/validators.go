package http

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"chat-dashboard/internal/domain"
)

var (
	registerValidatorsOnce sync.Once
	registerValidatorsErr  error
)

var domainValidations = map[string]validator.Func{
	"otp_purpose": func(fl validator.FieldLevel) bool {
		_, err := domain.ParseOTPPurpose(fl.Field().String())
		return err == nil
	},
	"otp_channel": func(fl validator.FieldLevel) bool {
		_, err := domain.ParseOTPChannel(fl.Field().String())
		return err == nil
	},
	"service_role": func(fl validator.FieldLevel) bool {
		return domain.ServiceRole(fl.Field().String()).Valid()
	},
	"http_method": func(fl validator.FieldLevel) bool {
		switch strings.ToUpper(fl.Field().String()) {
		case "GET", "PUT", "DELETE", "HEAD":
			return true
		}
		return false
	},
}

// RegisterValidators agrega al motor de binding de gin las reglas del dominio.
// Es idempotente; NewRouter la invoca y no arranca si falla.
func RegisterValidators() error {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerValidatorsErr = errors.New("gin binding engine is not validator/v10")
			return
		}
		registerValidatorsErr = registerValidations(v, domainValidations)
	})
	return registerValidatorsErr
}

func registerValidations(v *validator.Validate, rules map[string]validator.Func) error {
	var errs []error
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			errs = append(errs, fmt.Errorf("register %q: %w", tag, err))
		}
	}
	return errors.Join(errs...)
}
