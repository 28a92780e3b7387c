package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
)

// MaxKeyLen bounds configuration key length.
const MaxKeyLen = 256

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("configkey", validateConfigKey)
}

// validateConfigKey rejects keys with surrounding blanks or control characters.
func validateConfigKey(fl validator.FieldLevel) bool {
	k := fl.Field().String()
	if k == "" || strings.TrimSpace(k) != k {
		return false
	}
	return strings.IndexFunc(k, unicode.IsControl) < 0
}

type commitInput struct {
	Key  string `validate:"required,max=256,configkey"`
	Meta model.CommitMeta
}

type keyInput struct {
	Key string `validate:"required,max=256,configkey"`
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

// ValidateKey checks a configuration key.
func ValidateKey(key string) error { return validateStruct(keyInput{Key: key}) }
