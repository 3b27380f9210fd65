package handler

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

var registerOnce sync.Once

// RegisterValidators adds the verification binding tags to gin's validator engine.
// Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
			return
		}
		for tag, fn := range map[string]validator.Func{
			"verification_code":    validateCode,
			"verification_purpose": validatePurpose,
			"device_type":          validateDeviceType,
		} {
			if err = v.RegisterValidation(tag, fn); err != nil {
				return
			}
		}
	})
	return err
}

func validateCode(fl validator.FieldLevel) bool {
	return entity.IsWellFormedCode(fl.Field().String())
}

func validatePurpose(fl validator.FieldLevel) bool {
	_, err := entity.ParsePurpose(fl.Field().String())
	return err == nil
}

func validateDeviceType(fl validator.FieldLevel) bool {
	_, err := entity.ParseDeviceType(fl.Field().String())
	return err == nil
}
