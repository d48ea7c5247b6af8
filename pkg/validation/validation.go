package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// Validator wraps go-playground/validator with English messages keyed by JSON field name.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// New builds a validator that reports JSON field names and translated messages.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(v, trans)

	return &Validator{validate: v, trans: trans}
}

// Engine exposes the underlying validator for custom rule registration.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// RegisterRule registers a custom tag together with its English message.
func (v *Validator) RegisterRule(tag, message string, fn validator.Func) {
	_ = v.validate.RegisterValidation(tag, fn)
	_ = v.validate.RegisterTranslation(tag, v.trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, "{0} "+message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

// Struct validates s returning nil or the raw validator error.
func (v *Validator) Struct(s interface{}) error {
	return v.validate.Struct(s)
}

// Fields converts a validation error into field → message pairs.
func (v *Validator) Fields(err error) map[string]string {
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(v.trans)
		}
		return fields
	}
	if err != nil {
		fields["detail"] = err.Error()
	}
	return fields
}

// Describe renders a validation error as a single sentence naming every failing field.
func (v *Validator) Describe(err error) string {
	fields := v.Fields(err)
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, fields[k])
	}
	return strings.Join(messages, "; ")
}
