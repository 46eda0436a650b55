// Package roster imports enrollment samples from a YAML roster file.
//
// A roster looks like:
//
//	identities:
//	  - identity: alice
//	    samples:
//	      - vector: [0.12, -0.03, ...]
//	        image_ref: alice-01.jpg
//	        score: 0.97
//	  - identity: bob
//	    vectors:
//	      - [0.4, 0.1, ...]
package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/rollcall/internal/enrollment"
)

// Roster is a list of identities with their enrollment samples.
type Roster struct {
	Identities []Entry `yaml:"identities"`
}

// Entry is one identity of the roster.
type Entry struct {
	Identity string      `yaml:"identity"`
	Samples  []Sample    `yaml:"samples"`
	Vectors  [][]float64 `yaml:"vectors"`
}

// Sample is a single embedding with optional metadata.
type Sample struct {
	Vector   []float64 `yaml:"vector"`
	ImageRef string    `yaml:"image_ref"`
	Score    *float64  `yaml:"score"`
}

// Requests flattens the entry into enrollment requests.
func (e Entry) Requests() []enrollment.Request {
	reqs := make([]enrollment.Request, 0, len(e.Samples)+len(e.Vectors))
	for _, s := range e.Samples {
		reqs = append(reqs, enrollment.Request{
			Identity: e.Identity,
			Vector:   s.Vector,
			ImageRef: s.ImageRef,
			Score:    s.Score,
		})
	}
	for _, v := range e.Vectors {
		reqs = append(reqs, enrollment.Request{Identity: e.Identity, Vector: v})
	}
	return reqs
}

// SampleCount returns the number of samples in the roster.
func (r *Roster) SampleCount() int {
	n := 0
	for _, e := range r.Identities {
		n += len(e.Samples) + len(e.Vectors)
	}
	return n
}

// Parse decodes a roster from r.
func Parse(r io.Reader) (*Roster, error) {
	var roster Roster
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil {
		if errors.Is(err, io.EOF) {
			return &roster, nil
		}
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	for i, e := range roster.Identities {
		if strings.TrimSpace(e.Identity) == "" {
			return nil, fmt.Errorf("roster entry %d: identity is required", i+1)
		}
	}
	return &roster, nil
}

// Load reads a roster file.
func Load(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Failure is a sample that could not be enrolled.
type Failure struct {
	Identity string
	Index    int
	Err      error
}

// Summary reports the outcome of an import.
type Summary struct {
	Enrolled   int
	Rejected   int // capacity reached
	Failed     []Failure
	Duplicates int // samples close to another identity
}

// Importer enrolls the samples of a roster.
type Importer struct {
	manager *enrollment.Manager
	// OnSample is called after every sample, successful or not.
	OnSample func()
}

// NewImporter creates an importer.
func NewImporter(manager *enrollment.Manager) *Importer {
	return &Importer{manager: manager}
}

// Import enrolls every sample. Capacity rejections and invalid samples are counted
// and the import continues; store failures abort it.
func (im *Importer) Import(ctx context.Context, roster *Roster) (*Summary, error) {
	summary := &Summary{}
	for _, entry := range roster.Identities {
		for i, req := range entry.Requests() {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			result, err := im.manager.Enroll(ctx, req)
			switch {
			case err == nil:
				summary.Enrolled++
				if result.NearestOther != nil {
					summary.Duplicates++
				}
			case errors.Is(err, enrollment.ErrCapacityExceeded):
				summary.Rejected++
			case errors.Is(err, enrollment.ErrInvalidEnrollment):
				summary.Failed = append(summary.Failed, Failure{Identity: entry.Identity, Index: i, Err: err})
			default:
				return summary, fmt.Errorf("import %q sample %d: %w", entry.Identity, i+1, err)
			}

			if im.OnSample != nil {
				im.OnSample()
			}
		}
	}
	return summary, nil
}
