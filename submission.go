package pinbed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// OmittedSubArea is sent in place of an empty sub-area on registration.
const OmittedSubArea = "-"

// FormKind names the form a submission is built for.
type FormKind string

const (
	FormRegistration  FormKind = "registration"
	FormProfileUpdate FormKind = "profile-update"
	FormSearchFilter  FormKind = "search-filter"
	FormContact       FormKind = "contact"
)

var (
	ErrUnknownForm       = errors.New("pinbed: unknown form kind")
	ErrUnknownPincode    = errors.New("pinbed: pincode not in dataset")
	ErrCityStateMismatch = errors.New("pinbed: city/state do not match pincode")
	ErrInvalidSubmission = errors.New("pinbed: invalid submission")
)

// Submission is the location part of a registration, profile-update,
// search or contact request. Field names are the upstream wire contract.
type Submission struct {
	Pincode     string `json:"pincode" validate:"omitempty,number"`
	AreaName    string `json:"areaName"`
	SubAreaName string `json:"subAreaName"`
	City        string `json:"city"`
	State       string `json:"state"`
}

type formRule struct {
	required           []string
	subAreaPlaceholder string
}

var formRules = map[FormKind]formRule{
	FormRegistration:  {required: []string{"Pincode", "AreaName", "City", "State"}, subAreaPlaceholder: OmittedSubArea},
	FormProfileUpdate: {required: []string{"Pincode", "AreaName", "City", "State"}},
	FormSearchFilter:  {required: []string{"Pincode"}},
	FormContact:       {required: []string{"Pincode", "City", "State"}},
}

// ParseFormKind maps a form name to a FormKind.
func ParseFormKind(s string) (FormKind, error) {
	k := FormKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := formRules[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownForm, s)
	}
	return k, nil
}

// FieldError describes one rejected submission field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// SubmissionError lists every rejected field of a submission.
type SubmissionError struct {
	Form   FormKind     `json:"form"`
	Fields []FieldError `json:"fields"`
}

func (e *SubmissionError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Rule + ")"
	}
	return fmt.Sprintf("pinbed: invalid %s submission: %s", e.Form, strings.Join(parts, ", "))
}

// Unwrap lets errors.Is match ErrInvalidSubmission.
func (e *SubmissionError) Unwrap() error {
	return ErrInvalidSubmission
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// jsonFieldNames maps struct fields to their wire names for error reports.
var jsonFieldNames = map[string]string{
	"Pincode":     "pincode",
	"AreaName":    "areaName",
	"SubAreaName": "subAreaName",
	"City":        "city",
	"State":       "state",
}

// BuildSubmission packages a selection for the given form and validates
// the fields that form requires.
func BuildSubmission(state SelectionState, kind FormKind) (Submission, error) {
	rule, ok := formRules[kind]
	if !ok {
		return Submission{}, fmt.Errorf("%w: %q", ErrUnknownForm, kind)
	}

	sub := Submission{
		Pincode:     state.SelectedPincodeCode,
		AreaName:    state.SelectedAreaName,
		SubAreaName: state.SelectedSubAreaName,
		City:        state.ResolvedCity,
		State:       state.ResolvedState,
	}
	if sub.SubAreaName == "" && rule.subAreaPlaceholder != "" {
		sub.SubAreaName = rule.subAreaPlaceholder
	}

	if err := validateSubmission(sub, kind, rule); err != nil {
		return sub, err
	}
	return sub, nil
}

func validateSubmission(sub Submission, kind FormKind, rule formRule) error {
	var fields []FieldError

	if err := validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: jsonFieldNames[fe.StructField()], Rule: fe.Tag()})
		}
	}

	values := map[string]string{
		"Pincode":  sub.Pincode,
		"AreaName": sub.AreaName,
		"City":     sub.City,
		"State":    sub.State,
	}
	for _, name := range rule.required {
		if err := validate.Var(values[name], "required"); err != nil {
			fields = append(fields, FieldError{Field: jsonFieldNames[name], Rule: "required"})
		}
	}

	if len(fields) > 0 {
		return &SubmissionError{Form: kind, Fields: fields}
	}
	return nil
}

// Submission builds the payload for kind from the current state.
func (s *Selection) Submission(kind FormKind) (Submission, error) {
	return BuildSubmission(s.state, kind)
}

// CheckSubmission verifies a received payload against the dataset: city and
// state must be the pincode's, and any area or sub-area must belong to it.
// The OmittedSubArea placeholder is accepted as an empty sub-area.
func CheckSubmission(dataset []PincodeRecord, sub Submission) error {
	if sub.Pincode == "" {
		return nil
	}
	r, ok := FindPincodeRecord(dataset, sub.Pincode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPincode, sub.Pincode)
	}
	if (sub.City != "" && sub.City != r.City) || (sub.State != "" && sub.State != r.State) {
		return fmt.Errorf("%w: got %s/%s, want %s/%s", ErrCityStateMismatch, sub.City, sub.State, r.City, r.State)
	}
	if sub.AreaName == "" {
		return nil
	}
	area, ok := findArea(r.Areas, sub.AreaName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArea, sub.AreaName)
	}
	if sub.SubAreaName == "" || sub.SubAreaName == OmittedSubArea {
		return nil
	}
	if !hasSubArea(area.SubAreas, sub.SubAreaName) {
		return fmt.Errorf("%w: %s", ErrUnknownSubArea, sub.SubAreaName)
	}
	return nil
}
