package pinbed

import (
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/golang/geo/s2"
)

// maxFuzzyDistance caps the edit distance accepted by SuggestAreas.
const maxFuzzyDistance = 3

// maxQueryLen limits query length before Levenshtein comparisons.
const maxQueryLen = 256

// defaultSearchLimit applies when SearchPincodes gets a non-positive limit.
const defaultSearchLimit = 20

// AreaSuggestion is an area matched by SuggestAreas. Distance 0 means the
// query is a case-insensitive prefix of the name.
type AreaSuggestion struct {
	Area     AreaRecord `json:"area"`
	Distance int        `json:"distance"`
}

// SuggestAreas ranks areas whose names start with query or lie within
// maxDist edits of it, ignoring case. It is meant for typed search input;
// selection and resolution stay exact.
func SuggestAreas(areas []AreaRecord, query string, maxDist int) []AreaSuggestion {
	q := normalizeQuery(query)
	if q == "" {
		return []AreaSuggestion{}
	}
	if maxDist < 0 {
		maxDist = 0
	}
	if maxDist > maxFuzzyDistance {
		maxDist = maxFuzzyDistance
	}

	out := []AreaSuggestion{}
	for _, a := range areas {
		if d, ok := fuzzyMatch(q, a.Name, maxDist); ok {
			out = append(out, AreaSuggestion{
				Area:     AreaRecord{ID: a.ID, Name: a.Name, SubAreas: cloneSubAreas(a.SubAreas)},
				Distance: d,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return compareCaseInsensitive(out[i].Area.Name, out[j].Area.Name) < 0
	})
	return out
}

// fuzzyMatch compares a lowercase query with a candidate name. A prefix
// match has distance 0; otherwise the Levenshtein distance must be within maxDist.
func fuzzyMatch(query, candidate string, maxDist int) (int, bool) {
	c := strings.ToLower(candidate)
	if strings.HasPrefix(c, query) {
		return 0, true
	}
	if maxDist == 0 {
		return 0, false
	}
	dist := levenshtein.ComputeDistance(query, c)
	return dist, dist <= maxDist
}

func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if runes := []rune(q); len(runes) > maxQueryLen {
		q = string(runes[:maxQueryLen])
	}
	return strings.ToLower(q)
}

// SuggestAreas runs SuggestAreas over the areas of pincode code.
func (g *PinBed) SuggestAreas(code, query string, maxDist int) []AreaSuggestion {
	r, ok := g.Find(code)
	if !ok {
		return []AreaSuggestion{}
	}
	return SuggestAreas(r.Areas, query, maxDist)
}

// SearchPincodes returns records whose code starts with query or whose
// city equals it case-insensitively, in dataset order, at most limit.
func SearchPincodes(dataset []PincodeRecord, query string, limit int) []PincodeRecord {
	q := strings.TrimSpace(query)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	out := []PincodeRecord{}
	if q == "" {
		return out
	}
	for _, r := range dataset {
		if strings.HasPrefix(r.Code, q) || strings.EqualFold(r.City, q) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// SearchPincodes runs SearchPincodes over the loaded records.
func (g *PinBed) SearchPincodes(query string, limit int) []PincodeRecord {
	return SearchPincodes(g.Pincodes, query, limit)
}

// maxNearestDistance is ~50km in radians on the unit sphere.
const maxNearestDistance = 50.0 / 6371.0

// ringRadius is the smallest distance from a point to any cell outside the
// block formed by its own cell and the eight cells around it.
var ringRadius = s2.MinWidthMetric.Value(s2CellLevel)

type nearestCandidate struct {
	record PincodeRecord
	dist   float64
}

// Nearest returns the located pincode closest to lat/lng, if one lies
// within ~50km. Records without coordinates are never returned.
func (g *PinBed) Nearest(lat, lng float64) (PincodeRecord, bool) {
	if !validCoordinates(lat, lng) {
		return PincodeRecord{}, false
	}

	queryLL := s2.LatLngFromDegrees(lat, lng)
	queryCell := s2.CellIDFromLatLng(queryLL).Parent(s2CellLevel)

	candidates := g.ringCandidates(queryLL, queryCell)
	if best, ok := closest(candidates); !ok || best.dist > ringRadius {
		// Anything outside the 3x3 block of cells is at least one cell width
		// away, so a ring hit further than that is not guaranteed nearest.
		candidates = g.scanAll(queryLL)
	}
	if len(candidates) == 0 {
		return PincodeRecord{}, false
	}

	best, _ := closest(candidates)
	if best.dist > maxNearestDistance || math.IsNaN(best.dist) {
		return PincodeRecord{}, false
	}
	r := best.record
	r.Areas = cloneAreas(r.Areas)
	return r, true
}

func (g *PinBed) ringCandidates(queryLL s2.LatLng, queryCell s2.CellID) []nearestCandidate {
	var candidates []nearestCandidate
	for _, cell := range g.cellAndNeighbors(queryCell) {
		for _, idx := range g.cellIndex[cell] {
			r := g.Pincodes[idx]
			ll := s2.LatLngFromDegrees(r.Latitude, r.Longitude)
			candidates = append(candidates, nearestCandidate{record: r, dist: float64(queryLL.Distance(ll))})
		}
	}
	return candidates
}

// closest picks the smallest distance, breaking ties by code.
func closest(candidates []nearestCandidate) (nearestCandidate, bool) {
	if len(candidates) == 0 {
		return nearestCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.dist < best.dist || (c.dist == best.dist && c.record.Code < best.record.Code) {
			best = c
		}
	}
	return best, true
}

func (g *PinBed) scanAll(queryLL s2.LatLng) []nearestCandidate {
	var candidates []nearestCandidate
	for _, indices := range g.cellIndex {
		for _, idx := range indices {
			r := g.Pincodes[idx]
			ll := s2.LatLngFromDegrees(r.Latitude, r.Longitude)
			candidates = append(candidates, nearestCandidate{record: r, dist: float64(queryLL.Distance(ll))})
		}
	}
	return candidates
}
