package pinbed

import (
	"fmt"
	"math"
)

// Severity grades a dataset Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found in the reference dataset.
type Issue struct {
	Severity Severity `json:"severity"`
	RecordID string   `json:"recordId"`
	Code     string   `json:"code"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
}

func (is Issue) String() string {
	return fmt.Sprintf("%s: record %q (code %q) %s: %s", is.Severity, is.RecordID, is.Code, is.Field, is.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateDataset checks the dataset's shape. Errors are records the
// resolver cannot serve meaningfully; warnings are data-quality problems
// the resolver tolerates, such as duplicate codes where the first wins.
func ValidateDataset(records []PincodeRecord) []Issue {
	var issues []Issue
	seenCodes := make(map[string]string, len(records))

	for _, r := range records {
		add := func(sev Severity, field, msg string) {
			issues = append(issues, Issue{Severity: sev, RecordID: r.ID, Code: r.Code, Field: field, Message: msg})
		}

		if err := validate.Var(r.ID, "required"); err != nil {
			add(SeverityError, "_id", "missing id")
		}
		if err := validate.Var(r.Code, "required,number"); err != nil {
			add(SeverityError, "code", "code must be a non-empty string of digits")
		} else if first, dup := seenCodes[r.Code]; dup {
			add(SeverityWarning, "code", fmt.Sprintf("duplicate code, record %q wins", first))
		} else {
			seenCodes[r.Code] = r.ID
		}
		if r.City == "" {
			add(SeverityError, "city", "missing city")
		}
		if r.State == "" {
			add(SeverityError, "state", "missing state")
		} else if !isKnownState(r.State) {
			if canon := CanonicalStateName(r.State); canon != "" {
				add(SeverityWarning, "state", fmt.Sprintf("non-canonical state %q, expected %q", r.State, canon))
			} else {
				add(SeverityWarning, "state", fmt.Sprintf("unknown state %q", r.State))
			}
		}
		if r.HasLocation() && !validCoordinates(r.Latitude, r.Longitude) {
			add(SeverityWarning, "latitude/longitude", fmt.Sprintf("coordinates out of range: %v, %v", r.Latitude, r.Longitude))
		}

		seenAreas := make(map[string]bool, len(r.Areas))
		for i, a := range r.Areas {
			if a.Name == "" {
				add(SeverityError, fmt.Sprintf("areas[%d].name", i), "missing area name")
				continue
			}
			if seenAreas[a.Name] {
				add(SeverityWarning, fmt.Sprintf("areas[%d].name", i), fmt.Sprintf("duplicate area %q, first wins", a.Name))
			}
			seenAreas[a.Name] = true

			seenSub := make(map[string]bool, len(a.SubAreas))
			for j, s := range a.SubAreas {
				field := fmt.Sprintf("areas[%d].subAreas[%d].name", i, j)
				if s.Name == "" {
					add(SeverityError, field, "missing sub-area name")
					continue
				}
				if seenSub[s.Name] {
					add(SeverityWarning, field, fmt.Sprintf("duplicate sub-area %q in area %q", s.Name, a.Name))
				}
				seenSub[s.Name] = true
			}
		}
	}
	return issues
}

// Validate runs ValidateDataset over the loaded records.
func (g *PinBed) Validate() []Issue {
	return ValidateDataset(g.Pincodes)
}

func validCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// minPincodeCount is the smallest dataset ValidateCache accepts.
const minPincodeCount = 1

// knownPincode is a spot check for ValidateCache.
type knownPincode struct {
	code      string
	wantCity  string
	wantState string
}

// knownPincodes are checked when present in the cache. Datasets that do
// not cover them are not penalised.
var knownPincodes = []knownPincode{
	{"500038", "Hyderabad", "Telangana"},
	{"560034", "Bengaluru", "Karnataka"},
	{"400050", "Mumbai", "Maharashtra"},
}

// ValidateCache loads the gob cache in dir and performs integrity and
// functional checks. Returns an error if validation fails.
func ValidateCache(dir string) error {
	records, err := loadCachedPincodes(dir)
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}
	if len(records) < minPincodeCount {
		return fmt.Errorf("pincode count %d below minimum %d", len(records), minPincodeCount)
	}

	issues := ValidateDataset(records)
	if HasErrors(issues) {
		for _, is := range issues {
			if is.Severity == SeverityError {
				return fmt.Errorf("dataset invalid: %s", is)
			}
		}
	}

	g := FromRecords(records)
	for _, kp := range knownPincodes {
		r, ok := g.Find(kp.code)
		if !ok {
			continue
		}
		if r.City != kp.wantCity || r.State != kp.wantState {
			return fmt.Errorf("pincode %s = %s/%s, want %s/%s", kp.code, r.City, r.State, kp.wantCity, kp.wantState)
		}
		res := g.ResolveAreas(kp.code)
		if res.City != kp.wantCity {
			return fmt.Errorf("ResolveAreas(%s) city = %q, want %q", kp.code, res.City, kp.wantCity)
		}
	}
	return nil
}
