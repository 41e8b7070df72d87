package pinbed

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

//go:embed pinbed-data/pincodes.json
var embeddedPincodes []byte

// Loader fetches the full reference dataset. Implementations do not retry;
// callers decide how to degrade on error.
type Loader interface {
	LoadPincodes(ctx context.Context) ([]PincodeRecord, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]PincodeRecord, error)

// LoadPincodes calls f(ctx).
func (f LoaderFunc) LoadPincodes(ctx context.Context) ([]PincodeRecord, error) {
	return f(ctx)
}

// ErrMalformedDataset is returned when a payload is not a pincode array.
var ErrMalformedDataset = errors.New("pinbed: malformed pincode dataset")

// DecodeDataset reads a dataset from JSON. Besides a bare array it accepts
// an envelope object carrying the array under "data" or "pincodes".
func DecodeDataset(r io.Reader) ([]PincodeRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
	}

	switch first {
	case '[':
		var records []PincodeRecord
		if err := json.NewDecoder(br).Decode(&records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}
		return nonNil(records), nil
	case '{':
		var env struct {
			Data     *[]PincodeRecord `json:"data"`
			Pincodes *[]PincodeRecord `json:"pincodes"`
		}
		if err := json.NewDecoder(br).Decode(&env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataset, err)
		}
		switch {
		case env.Data != nil:
			return nonNil(*env.Data), nil
		case env.Pincodes != nil:
			return nonNil(*env.Pincodes), nil
		}
		return nil, fmt.Errorf("%w: object has no data or pincodes array", ErrMalformedDataset)
	}
	return nil, fmt.Errorf("%w: unexpected %q", ErrMalformedDataset, first)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func nonNil(records []PincodeRecord) []PincodeRecord {
	if records == nil {
		return []PincodeRecord{}
	}
	return records
}

// EmbeddedLoader serves the sample dataset compiled into the package.
type EmbeddedLoader struct{}

// LoadPincodes decodes the embedded dataset.
func (EmbeddedLoader) LoadPincodes(ctx context.Context) ([]PincodeRecord, error) {
	return DecodeDataset(bytes.NewReader(embeddedPincodes))
}

// httpClient is a shared HTTP client with reasonable timeouts.
var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// HTTPLoader fetches the dataset from the marketplace API.
type HTTPLoader struct {
	URL    string
	Client *http.Client // default: 30s timeout client
	Header http.Header  // extra request headers, e.g. Authorization
}

// LoadPincodes GETs URL and decodes the body.
func (l HTTPLoader) LoadPincodes(ctx context.Context) ([]PincodeRecord, error) {
	client := l.Client
	if client == nil {
		client = httpClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", l.URL, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range l.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", l.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", l.URL, resp.StatusCode)
	}
	return DecodeDataset(resp.Body)
}

// FileLoader reads the dataset from a JSON file, optionally gzip or bzip2
// compressed (by extension).
type FileLoader struct {
	Path string
}

// LoadPincodes opens and decodes Path.
func (l FileLoader) LoadPincodes(ctx context.Context) ([]PincodeRecord, error) {
	fh, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", l.Path, err)
	}
	defer fh.Close()

	var r io.Reader = fh
	switch {
	case strings.HasSuffix(l.Path, ".gz"):
		gz, err := gzip.NewReader(fh)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(l.Path, ".bz2"):
		r = bzip2.NewReader(fh)
	}

	records, err := DecodeDataset(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.Path, err)
	}
	return records, nil
}
