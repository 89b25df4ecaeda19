package wizard

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tetrispositiva/diagnostico/internal/model"
)

// Message IDs for lead form errors, translated by the i18n bundle.
const (
	MsgNameTooShort  = "LeadNameTooShort"
	MsgEmailInvalid  = "LeadEmailInvalid"
	MsgPhoneTooShort = "LeadPhoneTooShort"
)

const (
	minNameLen  = 3
	minPhoneLen = 10
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// LeadForm is the contact form shown after the last question.
type LeadForm struct {
	Name  string
	Email string
	Phone string
}

// FieldErrors maps a form field ("name", "email", "phone") to a message ID.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for _, f := range []string{"name", "email", "phone"} {
		if _, ok := e[f]; ok {
			fields = append(fields, f)
		}
	}
	return "invalid lead form: " + strings.Join(fields, ", ")
}

// Validate checks every field and returns all failures at once, or nil.
func (f LeadForm) Validate() FieldErrors {
	errs := FieldErrors{}
	if utf8.RuneCountInString(strings.TrimSpace(f.Name)) < minNameLen {
		errs["name"] = MsgNameTooShort
	}
	if !emailPattern.MatchString(strings.TrimSpace(f.Email)) {
		errs["email"] = MsgEmailInvalid
	}
	if utf8.RuneCountInString(strings.TrimSpace(f.Phone)) < minPhoneLen {
		errs["phone"] = MsgPhoneTooShort
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Contact returns the trimmed form values.
func (f LeadForm) Contact() model.Contact {
	return model.Contact{
		Name:  strings.TrimSpace(f.Name),
		Email: strings.TrimSpace(f.Email),
		Phone: strings.TrimSpace(f.Phone),
	}
}
