// Package ingest loads the external inputs of a run: the assumption bundle
// (an HJSON document, so actuaries can comment their tables) and the model
// point file (CSV).
package ingest

import (
	"fmt"
	"os"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"

	"actuarial_valuation/pkg/core/assumption"
)

type bundleOptions struct {
	repair bool
}

// BundleOption configures bundle parsing.
type BundleOption func(*bundleOptions)

// WithRepair retries a document that fails to parse after running it
// through a JSON repairer (unclosed brackets, single quotes, stray
// markdown fences from exported files).
func WithRepair() BundleOption {
	return func(o *bundleOptions) {
		o.repair = true
	}
}

// LoadBundle reads an assumption bundle file.
func LoadBundle(path string, opts ...BundleOption) (*assumption.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	b, err := ParseBundle(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("bundle %s: %w", path, err)
	}
	return b, nil
}

// ParseBundle parses an HJSON (or plain JSON) bundle document and builds
// the bundle.
func ParseBundle(data []byte, opts ...BundleOption) (*assumption.Bundle, error) {
	var o bundleOptions
	for _, opt := range opts {
		opt(&o)
	}

	var doc assumption.Document
	err := hjson.Unmarshal(data, &doc)
	if err != nil && o.repair {
		repaired, rerr := jsonrepair.RepairJSON(string(data))
		if rerr != nil {
			return nil, fmt.Errorf("parse bundle: %w (repair failed: %v)", err, rerr)
		}
		doc = assumption.Document{}
		err = hjson.Unmarshal([]byte(repaired), &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return doc.Build()
}
