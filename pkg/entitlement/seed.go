package entitlement

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the reference data file: feature definitions and plans.
//
//	features:
//	  - key: workspaces
//	    name: Workspaces
//	    type: limit
//	    period: lifetime
//	    scope: organization
//	    active: true
//	plans:
//	  - id: free
//	    name: Free
//	    limits:
//	      workspaces: 1
//	      priority_support: false
type Seed struct {
	Features []Definition `yaml:"features"`
	Plans    []Plan       `yaml:"plans"`
}

// LoadSeed decodes and validates a seed document.
// A seed without features uses DefaultDefinitions.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, errors.Join(ErrInvalidSeed, err)
	}

	if len(seed.Features) == 0 {
		seed.Features = DefaultDefinitions()
	}

	catalog, err := seed.Catalog()
	if err != nil {
		return Seed{}, errors.Join(ErrInvalidSeed, err)
	}
	if err := ValidatePlans(seed.planMap(), catalog); err != nil {
		return Seed{}, errors.Join(ErrInvalidSeed, err)
	}
	return seed, nil
}

// LoadSeedFile reads a seed document from disk.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, errors.Join(ErrInvalidSeed, err)
	}
	defer f.Close()

	return LoadSeed(f)
}

// Catalog builds the catalog of the seed's features.
func (s Seed) Catalog() (*Catalog, error) {
	return NewCatalog(s.Features...)
}

// Source returns the seed plans as a PlanSource.
func (s Seed) Source() PlanSource {
	return NewInMemSource(s.planMap())
}

func (s Seed) planMap() map[string]Plan {
	plans := make(map[string]Plan, len(s.Plans))
	for _, p := range s.Plans {
		plans[p.ID] = p
	}
	return plans
}

// UnmarshalYAML accepts booleans, integers, "unlimited" and null.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Join(ErrInvalidValue, fmt.Errorf("line %d: expected scalar", node.Line))
	}
	if node.Tag == "!!null" {
		*v = Absent()
		return nil
	}
	parsed, err := ParseValue(node.Value)
	if err != nil {
		return errors.Join(fmt.Errorf("line %d", node.Line), err)
	}
	*v = parsed
	return nil
}

// MarshalYAML encodes the value the way UnmarshalYAML reads it.
func (v Value) MarshalYAML() (any, error) {
	switch v.kind {
	case kindBoolean:
		return v.flag, nil
	case kindLimit, kindUnlimited:
		n, _ := v.Int()
		return n, nil
	default:
		return nil, nil
	}
}
