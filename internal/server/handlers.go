package server

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	geohash "github.com/TomiHiltunen/geohash-golang"
	"github.com/andreiashu/pinbed"
)

// nearestGeohashPrecision groups nearest lookups into ~150m cells.
const nearestGeohashPrecision = 7

// defaultSuggestDistance is used when /suggest/areas gets no distance.
const defaultSuggestDistance = 2

type healthResponse struct {
	Status    string `json:"status"`
	Records   int    `json:"records"`
	Uptime    string `json:"uptime"`
	LoadError string `json:"loadError,omitempty"`
	// SourceError is set when the dataset is served from the cache.
	SourceError string `json:"sourceError,omitempty"`
}

type pincodeList struct {
	Pincodes []pinbed.PincodeRecord `json:"pincodes"`
	Count    int                    `json:"count"`
}

type subAreaList struct {
	SubAreas []pinbed.SubAreaRecord `json:"subAreas"`
}

type suggestionList struct {
	Suggestions []pinbed.AreaSuggestion `json:"suggestions"`
}

// LocationRequest is the body of POST /locations and POST /submissions/{form}.
// City and state are optional on submissions; when present they must match
// the pincode.
type LocationRequest struct {
	Pincode     string `json:"pincode"`
	AreaName    string `json:"areaName,omitempty"`
	SubAreaName string `json:"subAreaName,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
}

// LocationResponse is the cascade state after replaying a LocationRequest.
type LocationResponse struct {
	Stage    string                 `json:"stage"`
	State    pinbed.SelectionState  `json:"state"`
	Areas    []pinbed.AreaRecord    `json:"areas"`
	SubAreas []pinbed.SubAreaRecord `json:"subAreas"`
}

type submissionResponse struct {
	Form       pinbed.FormKind   `json:"form"`
	Submission pinbed.Submission `json:"submission"`
}

type submissionErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields []pinbed.FieldError `json:"fields"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Records: s.bed.Len(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	switch {
	case s.opts.LoadError != nil:
		resp.Status = "degraded"
		resp.LoadError = s.opts.LoadError.Error()
	case s.Stale():
		resp.Status = "stale"
		resp.SourceError = s.bed.SourceError().Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchPincodes(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "q is required")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
		return
	}
	found := s.bed.SearchPincodes(q, limit)
	writeJSON(w, http.StatusOK, pincodeList{Pincodes: found, Count: len(found)})
}

func (s *Server) handleGetPincode(w http.ResponseWriter, r *http.Request) {
	code, ok := pathVar(w, r, "code")
	if !ok {
		return
	}
	rec, ok := s.bed.Find(code)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "pincode not found: "+code)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleAreas always answers 200; an unknown pincode resolves to no areas
// and an empty city and state, as the form would show it.
func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	code, ok := pathVar(w, r, "code")
	if !ok {
		return
	}
	res := s.bed.ResolveAreas(code)
	if r.URL.Query().Get("sort") == "name" {
		res.Areas = pinbed.SortAreasByName(res.Areas)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubAreas(w http.ResponseWriter, r *http.Request) {
	code, ok := pathVar(w, r, "code")
	if !ok {
		return
	}
	area, ok := pathVar(w, r, "area")
	if !ok {
		return
	}
	subAreas := s.bed.ResolveSubAreas(code, area)
	if r.URL.Query().Get("sort") == "name" {
		subAreas = pinbed.SortSubAreasByName(subAreas)
	}
	writeJSON(w, http.StatusOK, subAreaList{SubAreas: subAreas})
}

// handleLocations replays a cascade in one call: the pincode resolves city,
// state and areas; an area name additionally resolves its sub-areas.
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}
	sel, err := s.replay(req)
	if err != nil {
		writeSelectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LocationResponse{
		Stage:    sel.Stage().String(),
		State:    sel.State(),
		Areas:    sel.Areas(),
		SubAreas: sel.SubAreas(),
	})
}

// replay drives a fresh Selection through the request's pincode, area and
// sub-area, stopping at the first rejected transition.
func (s *Server) replay(req LocationRequest) (*pinbed.Selection, error) {
	sel := s.bed.NewSelection()
	sel.SelectPincode(strings.TrimSpace(req.Pincode))
	omitSubArea := req.SubAreaName == "" || req.SubAreaName == pinbed.OmittedSubArea
	if req.AreaName == "" {
		if !omitSubArea {
			return nil, pinbed.ErrNoArea
		}
		return sel, nil
	}
	if err := sel.SelectArea(req.AreaName); err != nil {
		return nil, err
	}
	if omitSubArea {
		return sel, nil
	}
	if err := sel.SelectSubArea(req.SubAreaName); err != nil {
		return nil, err
	}
	return sel, nil
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	lng, err := queryFloat(r, "lng")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		writeError(w, http.StatusBadRequest, "INVALID_COORDINATES", "coordinates out of range")
		return
	}

	key := GetCacheKey("nearest", geohash.EncodeWithPrecision(lat, lng, nearestGeohashPrecision))
	if cached, found := s.cache.Get(key); found {
		s.writeNearest(w, cached.(nearestResult))
		return
	}
	rec, ok := s.bed.Nearest(lat, lng)
	res := nearestResult{record: rec, found: ok}
	s.cache.SetDefault(key, res)
	s.writeNearest(w, res)
}

type nearestResult struct {
	record pinbed.PincodeRecord
	found  bool
}

func (s *Server) writeNearest(w http.ResponseWriter, res nearestResult) {
	if !res.found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no pincode near the given coordinates")
		return
	}
	writeJSON(w, http.StatusOK, res.record)
}

func (s *Server) handleSuggestAreas(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("pincode"))
	q := r.URL.Query().Get("q")
	if code == "" || strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY", "pincode and q are required")
		return
	}
	dist, err := queryInt(r, "distance", defaultSuggestDistance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_DISTANCE", err.Error())
		return
	}

	key := GetCacheKey("suggest", code, strings.ToLower(strings.TrimSpace(q)), dist)
	if cached, found := s.cache.Get(key); found {
		writeJSON(w, http.StatusOK, suggestionList{Suggestions: cached.([]pinbed.AreaSuggestion)})
		return
	}
	suggestions := s.bed.SuggestAreas(code, q, dist)
	s.cache.SetDefault(key, suggestions)
	writeJSON(w, http.StatusOK, suggestionList{Suggestions: suggestions})
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"states": pinbed.StateNames()})
}

// handleSubmission builds the payload for a form from the submitted cascade.
// Client-supplied city and state are checked against the dataset rather than
// trusted.
func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	form, ok := pathVar(w, r, "form")
	if !ok {
		return
	}
	kind, err := pinbed.ParseFormKind(form)
	if err != nil {
		writeError(w, http.StatusNotFound, "UNKNOWN_FORM", err.Error())
		return
	}
	var req LocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body: "+err.Error())
		return
	}

	claimed := pinbed.Submission{
		Pincode:     strings.TrimSpace(req.Pincode),
		AreaName:    req.AreaName,
		SubAreaName: req.SubAreaName,
		City:        req.City,
		State:       req.State,
	}
	if err := pinbed.CheckSubmission(s.bed.Pincodes, claimed); err != nil {
		writeSelectionError(w, err)
		return
	}

	sel, err := s.replay(req)
	if err != nil {
		writeSelectionError(w, err)
		return
	}
	sub, err := sel.Submission(kind)
	if err != nil {
		writeSelectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submissionResponse{Form: kind, Submission: sub})
}

// writeSelectionError maps resolver and submission errors to 422 responses.
func writeSelectionError(w http.ResponseWriter, err error) {
	var subErr *pinbed.SubmissionError
	switch {
	case errors.As(err, &subErr):
		writeJSON(w, http.StatusUnprocessableEntity, submissionErrorResponse{
			Error:  err.Error(),
			Code:   "INVALID_SUBMISSION",
			Fields: subErr.Fields,
		})
	case errors.Is(err, pinbed.ErrUnknownPincode):
		writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_PINCODE", err.Error())
	case errors.Is(err, pinbed.ErrCityStateMismatch):
		writeError(w, http.StatusUnprocessableEntity, "CITY_STATE_MISMATCH", err.Error())
	case errors.Is(err, pinbed.ErrUnknownArea):
		writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_AREA", err.Error())
	case errors.Is(err, pinbed.ErrUnknownSubArea):
		writeError(w, http.StatusUnprocessableEntity, "UNKNOWN_SUB_AREA", err.Error())
	case errors.Is(err, pinbed.ErrNoPincode), errors.Is(err, pinbed.ErrNoArea):
		writeError(w, http.StatusUnprocessableEntity, "INCOMPLETE_SELECTION", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}
