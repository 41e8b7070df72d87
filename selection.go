package pinbed

import "errors"

// Errors returned by Selection transitions. The selection is left unchanged
// when one of these is returned.
var (
	ErrNoPincode      = errors.New("pinbed: no pincode selected")
	ErrNoArea         = errors.New("pinbed: no area selected")
	ErrUnknownArea    = errors.New("pinbed: area not in selected pincode")
	ErrUnknownSubArea = errors.New("pinbed: sub-area not in selected area")
)

// Stage is the position of a Selection in the pincode → area → sub-area cascade.
type Stage int

const (
	StageEmpty Stage = iota
	StagePincodeResolved
	StageAreaResolved
	StageSubAreaResolved
)

func (s Stage) String() string {
	switch s {
	case StageEmpty:
		return "empty"
	case StagePincodeResolved:
		return "pincode-resolved"
	case StageAreaResolved:
		return "area-resolved"
	case StageSubAreaResolved:
		return "sub-area-resolved"
	}
	return "unknown"
}

// SelectionState is what a form holds for one location picker. City and
// state are derived from the pincode and cannot be set directly.
type SelectionState struct {
	SelectedPincodeCode string `json:"selectedPincodeCode"`
	SelectedAreaName    string `json:"selectedAreaName"`
	SelectedSubAreaName string `json:"selectedSubAreaName"`
	ResolvedCity        string `json:"resolvedCity"`
	ResolvedState       string `json:"resolvedState"`
}

// Selection drives a single form session through the cascade. Every
// upstream change discards downstream state, so a selected area always
// belongs to the selected pincode and a selected sub-area to the selected
// area.
//
// A Selection is not safe for concurrent use.
type Selection struct {
	dataset  []PincodeRecord
	find     func(code string) (PincodeRecord, bool)
	stage    Stage
	state    SelectionState
	areas    []AreaRecord
	subAreas []SubAreaRecord
}

// NewSelection starts an empty selection over dataset.
func NewSelection(dataset []PincodeRecord) *Selection {
	s := &Selection{dataset: dataset}
	s.find = func(code string) (PincodeRecord, bool) {
		return FindPincodeRecord(s.dataset, code)
	}
	s.reset()
	return s
}

// NewSelection starts an empty selection that resolves through the code index.
func (g *PinBed) NewSelection() *Selection {
	s := &Selection{dataset: g.Pincodes, find: g.Find}
	s.reset()
	return s
}

func (s *Selection) reset() {
	s.stage = StageEmpty
	s.state = SelectionState{}
	s.areas = []AreaRecord{}
	s.subAreas = []SubAreaRecord{}
}

// SelectPincode moves to StagePincodeResolved, discarding any area and
// sub-area, even when code is the current pincode. An empty code returns the
// selection to StageEmpty. An unknown code resolves to no areas and an
// empty city and state.
func (s *Selection) SelectPincode(code string) {
	s.reset()
	if code == "" {
		return
	}
	res := AreaResolution{Areas: []AreaRecord{}}
	if r, ok := s.find(code); ok {
		res = resolutionOf(r)
	}
	s.stage = StagePincodeResolved
	s.state.SelectedPincodeCode = code
	s.state.ResolvedCity = res.City
	s.state.ResolvedState = res.State
	s.areas = res.Areas
}

// SelectArea picks an area of the current pincode and resolves its
// sub-areas. An empty name clears the area.
func (s *Selection) SelectArea(name string) error {
	if s.stage == StageEmpty {
		return ErrNoPincode
	}
	if name == "" {
		s.clearArea()
		return nil
	}
	if _, ok := findArea(s.areas, name); !ok {
		return ErrUnknownArea
	}
	s.clearArea()
	s.stage = StageAreaResolved
	s.state.SelectedAreaName = name
	s.subAreas = ResolveSubAreasForArea(s.areas, name)
	return nil
}

func (s *Selection) clearArea() {
	s.stage = StagePincodeResolved
	s.state.SelectedAreaName = ""
	s.state.SelectedSubAreaName = ""
	s.subAreas = []SubAreaRecord{}
}

// SelectSubArea picks a sub-area of the current area. An empty name clears it.
func (s *Selection) SelectSubArea(name string) error {
	if s.stage < StageAreaResolved {
		return ErrNoArea
	}
	if name == "" {
		s.stage = StageAreaResolved
		s.state.SelectedSubAreaName = ""
		return nil
	}
	if !hasSubArea(s.subAreas, name) {
		return ErrUnknownSubArea
	}
	s.stage = StageSubAreaResolved
	s.state.SelectedSubAreaName = name
	return nil
}

// Stage returns the current stage.
func (s *Selection) Stage() Stage {
	return s.stage
}

// State returns a copy of the current selection state.
func (s *Selection) State() SelectionState {
	return s.state
}

// Areas returns the area options for the current pincode.
func (s *Selection) Areas() []AreaRecord {
	return cloneAreas(s.areas)
}

// SubAreas returns the sub-area options for the current area.
func (s *Selection) SubAreas() []SubAreaRecord {
	return cloneSubAreas(s.subAreas)
}
