package pinbed

import (
	"sort"
	"strings"
	"sync"
)

// StateCodes maps Indian state and union territory codes to full names.
var StateCodes = map[string]string{
	"AP": "Andhra Pradesh", "AR": "Arunachal Pradesh", "AS": "Assam",
	"BR": "Bihar", "CG": "Chhattisgarh", "GA": "Goa", "GJ": "Gujarat",
	"HR": "Haryana", "HP": "Himachal Pradesh", "JH": "Jharkhand",
	"KA": "Karnataka", "KL": "Kerala", "MP": "Madhya Pradesh",
	"MH": "Maharashtra", "MN": "Manipur", "ML": "Meghalaya", "MZ": "Mizoram",
	"NL": "Nagaland", "OD": "Odisha", "PB": "Punjab", "RJ": "Rajasthan",
	"SK": "Sikkim", "TN": "Tamil Nadu", "TS": "Telangana", "TR": "Tripura",
	"UP": "Uttar Pradesh", "UK": "Uttarakhand", "WB": "West Bengal",
	// Union territories
	"AN": "Andaman and Nicobar Islands", "CH": "Chandigarh",
	"DH": "Dadra and Nagar Haveli and Daman and Diu", "DL": "Delhi",
	"JK": "Jammu and Kashmir", "LA": "Ladakh", "LD": "Lakshadweep",
	"PY": "Puducherry",
}

// stateAliases covers spellings seen in postal data for the same state.
var stateAliases = map[string]string{
	"orissa":            "Odisha",
	"pondicherry":       "Puducherry",
	"uttaranchal":       "Uttarakhand",
	"nct of delhi":      "Delhi",
	"new delhi":         "Delhi",
	"chattisgarh":       "Chhattisgarh",
	"telengana":         "Telangana",
	"andaman & nicobar": "Andaman and Nicobar Islands",
	"jammu & kashmir":   "Jammu and Kashmir",
}

// stateNameIndex maps lowercase state names and aliases to canonical names.
var stateNameIndex = sync.OnceValue(func() map[string]string {
	idx := make(map[string]string, len(StateCodes)+len(stateAliases))
	for _, name := range StateCodes {
		idx[strings.ToLower(name)] = name
	}
	for alias, name := range stateAliases {
		idx[alias] = name
	}
	return idx
})

// sortedStateNames returns the canonical state names in alphabetical order.
var sortedStateNames = sync.OnceValue(func() []string {
	names := make([]string, 0, len(StateCodes))
	for _, n := range StateCodes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
})

// StateNames lists the known states and union territories alphabetically.
func StateNames() []string {
	return append([]string(nil), sortedStateNames()...)
}

// CanonicalStateName returns the canonical name for a state name, alias or
// code, or "" if it is not a known state.
func CanonicalStateName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if name, ok := StateCodes[strings.ToUpper(s)]; ok {
		return name
	}
	return stateNameIndex()[strings.ToLower(s)]
}

// isKnownState reports whether name is a state exactly as the dataset
// should spell it.
func isKnownState(name string) bool {
	return CanonicalStateName(name) == name && name != ""
}
