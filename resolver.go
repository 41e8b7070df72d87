package pinbed

import (
	"sort"
	"strings"
)

// AreaResolution is the result of resolving a pincode: the derived city and
// state plus the pincode's areas. Fields are never nil.
type AreaResolution struct {
	City  string       `json:"city"`
	State string       `json:"state"`
	Areas []AreaRecord `json:"areas"`
}

// FindPincodeRecord returns the first record whose Code equals code.
// An empty code never matches.
func FindPincodeRecord(dataset []PincodeRecord, code string) (PincodeRecord, bool) {
	if code == "" {
		return PincodeRecord{}, false
	}
	for _, r := range dataset {
		if r.Code == code {
			return r, true
		}
	}
	return PincodeRecord{}, false
}

// ResolveAreasForPincode returns the city, state and areas for code, or an
// empty resolution when code is empty or unknown. Areas keep dataset order
// and are copied, so callers may sort them.
func ResolveAreasForPincode(dataset []PincodeRecord, code string) AreaResolution {
	r, ok := FindPincodeRecord(dataset, code)
	if !ok {
		return AreaResolution{Areas: []AreaRecord{}}
	}
	return resolutionOf(r)
}

func resolutionOf(r PincodeRecord) AreaResolution {
	areas := cloneAreas(r.Areas)
	if areas == nil {
		areas = []AreaRecord{}
	}
	return AreaResolution{City: r.City, State: r.State, Areas: areas}
}

// ResolveSubAreasForArea returns the sub-areas of the area named areaName.
// Matching is exact and case-sensitive; no match yields an empty slice.
func ResolveSubAreasForArea(areas []AreaRecord, areaName string) []SubAreaRecord {
	if a, ok := findArea(areas, areaName); ok && len(a.SubAreas) > 0 {
		return cloneSubAreas(a.SubAreas)
	}
	return []SubAreaRecord{}
}

func findArea(areas []AreaRecord, name string) (AreaRecord, bool) {
	if name == "" {
		return AreaRecord{}, false
	}
	for _, a := range areas {
		if a.Name == name {
			return a, true
		}
	}
	return AreaRecord{}, false
}

func hasSubArea(subAreas []SubAreaRecord, name string) bool {
	if name == "" {
		return false
	}
	for _, s := range subAreas {
		if s.Name == name {
			return true
		}
	}
	return false
}

// SortAreasByName returns a copy of areas ordered by name, case-insensitively.
func SortAreasByName(areas []AreaRecord) []AreaRecord {
	out := cloneAreas(areas)
	sort.SliceStable(out, func(i, j int) bool {
		return compareCaseInsensitive(out[i].Name, out[j].Name) < 0
	})
	return out
}

// SortSubAreasByName returns a copy of subAreas ordered by name, case-insensitively.
func SortSubAreasByName(subAreas []SubAreaRecord) []SubAreaRecord {
	out := cloneSubAreas(subAreas)
	sort.SliceStable(out, func(i, j int) bool {
		return compareCaseInsensitive(out[i].Name, out[j].Name) < 0
	})
	return out
}

// compareCaseInsensitive compares two strings case-insensitively.
// Unicode-aware lowering keeps names like "Éluru" next to "Eluru".
func compareCaseInsensitive(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

// cloneAreas deep-copies areas, keeping nil slices nil.
func cloneAreas(areas []AreaRecord) []AreaRecord {
	if areas == nil {
		return nil
	}
	out := make([]AreaRecord, len(areas))
	for i, a := range areas {
		out[i] = AreaRecord{
			ID:       a.ID,
			Name:     a.Name,
			SubAreas: cloneSubAreas(a.SubAreas),
		}
	}
	return out
}

func cloneSubAreas(subAreas []SubAreaRecord) []SubAreaRecord {
	if subAreas == nil {
		return nil
	}
	out := make([]SubAreaRecord, len(subAreas))
	copy(out, subAreas)
	return out
}

// Find returns the first record with the given code.
func (g *PinBed) Find(code string) (PincodeRecord, bool) {
	idx, ok := g.codeIndex[code]
	if !ok {
		return PincodeRecord{}, false
	}
	return g.Pincodes[idx], true
}

// ResolveAreas is ResolveAreasForPincode over the indexed dataset.
func (g *PinBed) ResolveAreas(code string) AreaResolution {
	r, ok := g.Find(code)
	if !ok {
		return AreaResolution{Areas: []AreaRecord{}}
	}
	return resolutionOf(r)
}

// ResolveSubAreas resolves the sub-areas of areaName within pincode code.
func (g *PinBed) ResolveSubAreas(code, areaName string) []SubAreaRecord {
	r, ok := g.Find(code)
	if !ok {
		return []SubAreaRecord{}
	}
	return ResolveSubAreasForArea(r.Areas, areaName)
}
