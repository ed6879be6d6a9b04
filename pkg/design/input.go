package design

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"
)

// Design is a complete experiment description: the factor pool, one or more
// crossings over it, and the sequence constraints.
type Design struct {
	Factors     []*Factor
	Crossings   [][]*Factor
	Constraints []Constraint
}

// Factor returns the named factor, or nil.
func (d *Design) Factor(name string) *Factor {
	for _, f := range d.Factors {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// The on-disk schema. Derived levels reference earlier factors by name and
// builtin predicates by keyword.
type fileDesign struct {
	Factors     []fileFactor     `mapstructure:"factors"`
	Crossing    []string         `mapstructure:"crossing"`
	Crossings   [][]string       `mapstructure:"crossings"`
	Constraints []fileConstraint `mapstructure:"constraints"`
}

type fileFactor struct {
	Name   string      `mapstructure:"name"`
	Levels []fileLevel `mapstructure:"levels"`
}

type fileLevel struct {
	Name       string      `mapstructure:"name"`
	Weight     int         `mapstructure:"weight"`
	Derivation *fileWindow `mapstructure:"derivation"`
}

type fileWindow struct {
	Predicate string   `mapstructure:"predicate"`
	Factors   []string `mapstructure:"factors"`
	Width     int      `mapstructure:"width"`
	Stride    int      `mapstructure:"stride"`
	Start     int      `mapstructure:"start"`
}

type fileConstraint struct {
	Type   string `mapstructure:"type"`
	Factor string `mapstructure:"factor"`
	Level  string `mapstructure:"level"`
	K      int    `mapstructure:"k"`
	Trial  int    `mapstructure:"trial"`
	Trials int    `mapstructure:"trials"`
}

// Load reads a JSON design description. Factors must be declared before any
// derivation that references them.
func Load(r io.Reader) (*Design, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing design file: %w", err)
	}
	var fd fileDesign
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &fd,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding design file: %w", err)
	}
	return fd.build()
}

func (fd *fileDesign) build() (*Design, error) {
	d := &Design{}
	for _, ff := range fd.Factors {
		f, err := ff.build(d)
		if err != nil {
			return nil, err
		}
		d.Factors = append(d.Factors, f)
	}

	crossings := fd.Crossings
	if len(fd.Crossing) > 0 {
		crossings = append([][]string{fd.Crossing}, crossings...)
	}
	if len(crossings) == 0 {
		return nil, fmt.Errorf("design file declares no crossing")
	}
	for _, names := range crossings {
		var crossing []*Factor
		for _, name := range names {
			f := d.Factor(name)
			if f == nil {
				return nil, fmt.Errorf("crossing references unknown factor %q", name)
			}
			crossing = append(crossing, f)
		}
		d.Crossings = append(d.Crossings, crossing)
	}

	for _, fc := range fd.Constraints {
		c, err := fc.build()
		if err != nil {
			return nil, err
		}
		d.Constraints = append(d.Constraints, c)
	}
	return d, nil
}

func (ff *fileFactor) build(d *Design) (*Factor, error) {
	if d.Factor(ff.Name) != nil {
		return nil, fmt.Errorf("duplicate factor %q", ff.Name)
	}
	levels := make([]*Level, 0, len(ff.Levels))
	for _, fl := range ff.Levels {
		weight := fl.Weight
		if weight == 0 {
			weight = 1
		}
		l := &Level{Name: fl.Name, Weight: weight}
		if fl.Derivation != nil {
			w, err := fl.Derivation.build(d)
			if err != nil {
				return nil, fmt.Errorf("factor %q level %q: %w", ff.Name, fl.Name, err)
			}
			l.Window = w
		}
		levels = append(levels, l)
	}
	return NewFactor(ff.Name, levels...)
}

func (fw *fileWindow) build(d *Design) (*Window, error) {
	p, err := LookupPredicate(fw.Predicate)
	if err != nil {
		return nil, err
	}
	var factors []*Factor
	for _, name := range fw.Factors {
		f := d.Factor(name)
		if f == nil {
			return nil, fmt.Errorf("derivation references unknown factor %q (factors must be declared before use)", name)
		}
		factors = append(factors, f)
	}
	width, stride := fw.Width, fw.Stride
	if width == 0 {
		width = 1
	}
	if stride == 0 {
		stride = 1
	}
	return &Window{Predicate: p, Factors: factors, Width: width, Stride: stride, Start: fw.Start}, nil
}

func (fc *fileConstraint) build() (Constraint, error) {
	switch fc.Type {
	case "exclude":
		return Exclude{Factor: fc.Factor, Level: fc.Level}, nil
	case "pin":
		return Pin{Trial: fc.Trial, Factor: fc.Factor, Level: fc.Level}, nil
	case "minimum_trials":
		return MinimumTrials{Trials: fc.Trials}, nil
	case "exactly_k":
		return ExactlyK{K: fc.K, Factor: fc.Factor, Level: fc.Level}, nil
	case "at_most_k_in_a_row":
		return AtMostKInARow{K: fc.K, Factor: fc.Factor, Level: fc.Level}, nil
	case "at_least_k_in_a_row":
		return AtLeastKInARow{K: fc.K, Factor: fc.Factor, Level: fc.Level}, nil
	case "exactly_k_in_a_row":
		return ExactlyKInARow{K: fc.K, Factor: fc.Factor, Level: fc.Level}, nil
	default:
		return nil, fmt.Errorf("unknown constraint type %q", fc.Type)
	}
}
