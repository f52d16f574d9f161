package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a record ID is unknown.
var ErrNotFound = errors.New("catalog record not found")

// Reader is the read-only catalog contract consumed by the wizard screens.
// Filters are optional; an empty ID returns everything.
type Reader interface {
	MainOptions(ctx context.Context) ([]MainOption, error)
	Places(ctx context.Context, mainOptionID string) ([]Place, error)
	IntendedImpacts(ctx context.Context, mainOptionID string) ([]IntendedImpact, error)
	Containers(ctx context.Context) ([]Container, error)
	Aromas(ctx context.Context, intendedImpactID string) ([]Aroma, error)
	Labels(ctx context.Context) ([]Label, error)
}

// Static is an in-memory catalog, seeded from YAML for development and tests.
type Static struct {
	MainOptionList     []MainOption     `yaml:"mainOptions"`
	PlaceList          []Place          `yaml:"places"`
	IntendedImpactList []IntendedImpact `yaml:"intendedImpacts"`
	ContainerList      []Container      `yaml:"containers"`
	AromaList          []Aroma          `yaml:"aromas"`
	LabelList          []Label          `yaml:"labels"`
}

// ParseStatic decodes a YAML catalog document.
func ParseStatic(data []byte) (*Static, error) {
	var s Static
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &s, nil
}

// LoadStatic reads a YAML catalog file.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseStatic(data)
}

func (s *Static) MainOptions(ctx context.Context) ([]MainOption, error) {
	return s.MainOptionList, nil
}

func (s *Static) Places(ctx context.Context, mainOptionID string) ([]Place, error) {
	return filter(s.PlaceList, func(p Place) bool {
		return mainOptionID == "" || p.MainOptionID == "" || p.MainOptionID == mainOptionID
	}), nil
}

func (s *Static) IntendedImpacts(ctx context.Context, mainOptionID string) ([]IntendedImpact, error) {
	return filter(s.IntendedImpactList, func(i IntendedImpact) bool {
		return mainOptionID == "" || i.MainOptionID == "" || i.MainOptionID == mainOptionID
	}), nil
}

func (s *Static) Containers(ctx context.Context) ([]Container, error) {
	return s.ContainerList, nil
}

func (s *Static) Aromas(ctx context.Context, intendedImpactID string) ([]Aroma, error) {
	return filter(s.AromaList, func(a Aroma) bool {
		return intendedImpactID == "" || a.IntendedImpactID == "" || a.IntendedImpactID == intendedImpactID
	}), nil
}

func (s *Static) Labels(ctx context.Context) ([]Label, error) {
	return s.LabelList, nil
}

// FindAroma looks up an aroma by ID through any Reader.
func FindAroma(ctx context.Context, r Reader, id string) (Aroma, error) {
	aromas, err := r.Aromas(ctx, "")
	if err != nil {
		return Aroma{}, err
	}
	for _, a := range aromas {
		if a.ID == id {
			return a, nil
		}
	}
	return Aroma{}, fmt.Errorf("aroma %q: %w", id, ErrNotFound)
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
