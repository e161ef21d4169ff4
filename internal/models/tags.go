package models

import (
	"fmt"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"
)

// TagPair is one landmark identified in both volumes
type TagPair struct {
	// Name is an optional label for reporting
	Name string `yaml:"name,omitempty"`

	// Target is the landmark position in the target volume, in mm
	Target [3]float64 `yaml:"target"`

	// Source is the landmark position in the source volume, in mm
	Source [3]float64 `yaml:"source"`
}

// TagSet is the tag-pair document read by the command line tool
type TagSet struct {
	// Description is free text carried into the output file header
	Description string `yaml:"description,omitempty"`

	// Pairs holds the landmarks in input order
	Pairs []TagPair `yaml:"pairs"`
}

// LoadTags reads and validates a YAML tag-pair document
func LoadTags(path string) (*TagSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tag file: %w", err)
	}

	var set TagSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("error parsing tag file: %w", err)
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &set, nil
}

// Validate rejects empty documents and non-finite coordinates
func (s *TagSet) Validate() error {
	if len(s.Pairs) == 0 {
		return fmt.Errorf("no tag pairs")
	}
	for i, p := range s.Pairs {
		for k := 0; k < 3; k++ {
			if !finite(p.Target[k]) || !finite(p.Source[k]) {
				return fmt.Errorf("pair %d (%s): non-finite coordinate", i, p.Label(i))
			}
		}
	}
	return nil
}

// Label returns the pair name, or its 1-based position if unnamed
func (p TagPair) Label(i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d", i+1)
}

// Targets returns the target-volume points in input order
func (s *TagSet) Targets() []r3.Vector {
	out := make([]r3.Vector, len(s.Pairs))
	for i, p := range s.Pairs {
		out[i] = toVector(p.Target)
	}
	return out
}

// Sources returns the source-volume points in input order
func (s *TagSet) Sources() []r3.Vector {
	out := make([]r3.Vector, len(s.Pairs))
	for i, p := range s.Pairs {
		out[i] = toVector(p.Source)
	}
	return out
}

func toVector(a [3]float64) r3.Vector {
	return r3.Vector{X: a[0], Y: a[1], Z: a[2]}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
