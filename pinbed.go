// Package pinbed resolves the pincode → area → sub-area cascade used by
// address forms, over a reference dataset held in memory.
package pinbed

import (
	"bytes"
	"compress/bzip2"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/geo/s2"
)

// SubAreaRecord is the leaf of the location hierarchy.
type SubAreaRecord struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// AreaRecord is an area nested inside a pincode. It has no identity
// outside its parent record.
type AreaRecord struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	SubAreas []SubAreaRecord `json:"subAreas"`
}

// PincodeRecord is one entry of the reference dataset. Code is expected to
// be unique but that is not enforced; lookups take the first match.
type PincodeRecord struct {
	ID        string       `json:"_id"`
	Code      string       `json:"code"`
	City      string       `json:"city"`
	State     string       `json:"state"`
	Areas     []AreaRecord `json:"areas"`
	Latitude  float64      `json:"latitude,omitempty"`
	Longitude float64      `json:"longitude,omitempty"`
}

// HasLocation reports whether the record carries a centroid.
func (r PincodeRecord) HasLocation() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

// s2CellLevel is ~10km cells at the equator. Pincode centroids in a city
// are a few km apart, so a cell plus its neighbours covers the search radius.
const s2CellLevel = 10

// cacheFileName is the gob dump written by Store.
const cacheFileName = "pincodes.dmp"

// PinbedConfig contains configuration options for PinBed initialization.
type PinbedConfig struct {
	Loader     Loader       // Dataset source (default: embedded sample)
	CacheDir   string       // Directory for the gob cache (default: "./pinbed-cache")
	StoreCache bool         // Write the cache after a successful load
	Logger     *slog.Logger // Logger for load and validation notices
}

// Option is a functional option for configuring PinBed.
type Option func(*PinbedConfig)

// WithLoader sets the dataset source.
func WithLoader(l Loader) Option {
	return func(c *PinbedConfig) {
		c.Loader = l
	}
}

// WithCacheDir sets the directory for cache files.
func WithCacheDir(dir string) Option {
	return func(c *PinbedConfig) {
		c.CacheDir = dir
	}
}

// WithStoreCache enables writing the gob cache after a successful load.
func WithStoreCache(store bool) Option {
	return func(c *PinbedConfig) {
		c.StoreCache = store
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *PinbedConfig) {
		c.Logger = l
	}
}

func defaultConfig() *PinbedConfig {
	return &PinbedConfig{
		Loader:   EmbeddedLoader{},
		CacheDir: "./pinbed-cache",
		Logger:   slog.Default(),
	}
}

// PinBed holds a loaded pincode dataset with lookup indexes.
// Safe for concurrent use after initialization.
type PinBed struct {
	Pincodes  []PincodeRecord     // Records in source order
	codeIndex map[string]int      // code → index of first record with that code
	cellIndex map[s2.CellID][]int // S2 cell index for Nearest
	config    *PinbedConfig
	sourceErr error // loader failure when the dataset came from the cache
}

// Singleton pattern for default PinBed instance.
var (
	defaultPinbed     *PinBed
	defaultPinbedOnce sync.Once
	defaultPinbedErr  error
)

// GetDefaultPinbed returns a shared PinBed over the embedded dataset,
// initializing it on first call.
func GetDefaultPinbed() (*PinBed, error) {
	defaultPinbedOnce.Do(func() {
		defaultPinbed, defaultPinbedErr = NewPinbed(context.Background())
	})
	return defaultPinbed, defaultPinbedErr
}

// NewPinbed loads the dataset from the configured loader and indexes it.
//
// When the loader fails, the gob cache in CacheDir is tried before giving up:
//
//	g, err := NewPinbed(ctx, WithLoader(HTTPLoader{URL: apiURL}), WithCacheDir("/var/cache/pinbed"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res := g.ResolveAreas("500038")
func NewPinbed(ctx context.Context, opts ...Option) (*PinBed, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	records, err := cfg.Loader.LoadPincodes(ctx)
	if err != nil {
		cfg.Logger.Warn("pincode load failed, trying cache", "error", err, "cache_dir", cfg.CacheDir)
		cached, cacheErr := loadCachedPincodes(cfg.CacheDir)
		if cacheErr != nil {
			return nil, fmt.Errorf("loading pincodes: %w", err)
		}
		records = cached
	}

	g := newPinbed(records, cfg)
	g.sourceErr = err
	if issues := g.Validate(); len(issues) > 0 {
		for _, is := range issues {
			cfg.Logger.Warn("pincode dataset issue", "severity", is.Severity, "record", is.RecordID, "code", is.Code, "field", is.Field, "message", is.Message)
		}
	}

	if err == nil && cfg.StoreCache {
		if storeErr := g.Store(); storeErr != nil {
			cfg.Logger.Warn("failed to store cache", "error", storeErr)
		}
	}
	cfg.Logger.Info("pincode dataset loaded", "records", len(g.Pincodes), "located", g.located())
	return g, nil
}

// SourceError returns the loader error when NewPinbed fell back to the gob
// cache, or nil when the dataset came from its source.
func (g *PinBed) SourceError() error {
	return g.sourceErr
}

// FromRecords indexes an already loaded dataset. The loader option is ignored.
func FromRecords(records []PincodeRecord, opts ...Option) *PinBed {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return newPinbed(records, cfg)
}

func newPinbed(records []PincodeRecord, cfg *PinbedConfig) *PinBed {
	if records == nil {
		records = []PincodeRecord{}
	}
	g := &PinBed{Pincodes: records, config: cfg}
	g.buildCodeIndex()
	g.buildCellIndex()
	return g
}

// Len returns the number of records.
func (g *PinBed) Len() int {
	return len(g.Pincodes)
}

func (g *PinBed) located() int {
	n := 0
	for _, idx := range g.cellIndex {
		n += len(idx)
	}
	return n
}

// buildCodeIndex keeps the first record per code so indexed lookups agree
// with FindPincodeRecord's scan order.
func (g *PinBed) buildCodeIndex() {
	g.codeIndex = make(map[string]int, len(g.Pincodes))
	for i, r := range g.Pincodes {
		if r.Code == "" {
			continue
		}
		if _, ok := g.codeIndex[r.Code]; !ok {
			g.codeIndex[r.Code] = i
		}
	}
}

// buildCellIndex creates an S2 cell-based spatial index for Nearest.
func (g *PinBed) buildCellIndex() {
	g.cellIndex = make(map[s2.CellID][]int)
	for i, r := range g.Pincodes {
		if !r.HasLocation() || !validCoordinates(r.Latitude, r.Longitude) {
			continue
		}
		ll := s2.LatLngFromDegrees(r.Latitude, r.Longitude)
		cell := s2.CellIDFromLatLng(ll).Parent(s2CellLevel)
		g.cellIndex[cell] = append(g.cellIndex[cell], i)
	}
}

// cellAndNeighbors returns the given cell plus its neighboring cells.
func (g *PinBed) cellAndNeighbors(cell s2.CellID) []s2.CellID {
	cells := make([]s2.CellID, 0, 9)
	cells = append(cells, cell)

	edgeNeighbors := cell.EdgeNeighbors()
	for i := 0; i < 4; i++ {
		cells = append(cells, edgeNeighbors[i])
	}

	seen := make(map[s2.CellID]bool)
	for _, c := range cells {
		seen[c] = true
	}
	for i := 0; i < 4; i++ {
		for _, corner := range edgeNeighbors[i].EdgeNeighbors() {
			if !seen[corner] {
				cells = append(cells, corner)
				seen[corner] = true
			}
		}
	}
	return cells
}

// Store writes the dataset to the gob cache in CacheDir.
func (g *PinBed) Store() error {
	return storePincodes(g.config.CacheDir, g.Pincodes)
}

func storePincodes(dir string, records []PincodeRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	b := new(bytes.Buffer)
	if err := gob.NewEncoder(b).Encode(records); err != nil {
		return fmt.Errorf("encoding pincodes: %w", err)
	}
	path := filepath.Join(dir, cacheFileName)
	if err := os.WriteFile(path, b.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	// A compressed copy from an earlier run would shadow the new dump.
	if err := os.Remove(path + ".bz2"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale %s.bz2: %w", path, err)
	}
	return nil
}

// openOptionallyBzippedFile prefers a .bz2 sibling when one exists.
func openOptionallyBzippedFile(file string) (io.Reader, func() error, error) {
	fh, err := os.Open(file + ".bz2")
	if err != nil {
		fh, err = os.Open(file)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", file, err)
		}
		return fh, fh.Close, nil
	}
	return bzip2.NewReader(fh), fh.Close, nil
}

func loadCachedPincodes(dir string) ([]PincodeRecord, error) {
	fh, cleanup, err := openOptionallyBzippedFile(filepath.Join(dir, cacheFileName))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var records []PincodeRecord
	if err := gob.NewDecoder(fh).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding pincode cache: %w", err)
	}
	return records, nil
}
