package design

import (
	"fmt"
)

// Predicate decides whether a derived level holds. args carries, per source
// factor of the level's window, the window-width level names observed for
// that factor, oldest trial first. For width-1 windows every inner slice has
// exactly one element.
type Predicate func(args [][]string) bool

// Window describes how a derived level observes other factors: a predicate
// applied to a Width-sized slice of trials, re-evaluated every Stride
// trials, beginning Start trials after the earliest trial the window fits.
type Window struct {
	Predicate Predicate
	Factors   []*Factor
	Width     int
	Stride    int
	Start     int
}

// WithinTrial is the width-1 special case: the predicate sees only the
// current trial.
func WithinTrial(p Predicate, factors []*Factor) *Window {
	return &Window{Predicate: p, Factors: factors, Width: 1, Stride: 1}
}

// Transition is the width-2, stride-1 special case: the predicate sees the
// previous and the current trial.
func Transition(p Predicate, factors []*Factor) *Window {
	return &Window{Predicate: p, Factors: factors, Width: 2, Stride: 1}
}

func (w *Window) validate() error {
	if w.Predicate == nil {
		return fmt.Errorf("derivation window has no predicate")
	}
	if w.Width < 1 {
		return fmt.Errorf("derivation window must have a width of at least 1; got %d", w.Width)
	}
	if w.Stride < 1 {
		return fmt.Errorf("derivation window must have a stride of at least 1; got %d", w.Stride)
	}
	if w.Start < 0 {
		return fmt.Errorf("derivation window must not start before the first trial")
	}
	if len(w.Factors) == 0 {
		return fmt.Errorf("derivation window references no factors")
	}
	seen := map[string]bool{}
	for _, f := range w.Factors {
		if seen[f.Name] {
			return fmt.Errorf("derivation window repeats factor %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Level is one value a factor can take. A simple level is an atomic label;
// a derived level carries a Window that computes its truth from other
// factors. Weight > 1 marks a level that must occur that many times per
// crossing ("copies").
type Level struct {
	Name   string
	Weight int
	Window *Window
}

// SimpleLevel returns an atomic level with weight 1.
func SimpleLevel(name string) *Level {
	return &Level{Name: name, Weight: 1}
}

// WeightedLevel returns an atomic level that counts as weight copies in a
// crossing.
func WeightedLevel(name string, weight int) *Level {
	return &Level{Name: name, Weight: weight}
}

// DerivedLevel returns a level defined by a derivation window.
func DerivedLevel(name string, w *Window) *Level {
	return &Level{Name: name, Weight: 1, Window: w}
}

// IsDerived reports whether this level is defined by a window.
func (l *Level) IsDerived() bool { return l.Window != nil }

// Factor is a named variable dimension with an ordered, non-empty list of
// levels. All levels of a derived factor must share the same window shape.
type Factor struct {
	Name   string
	Levels []*Level
}

// NewFactor validates and returns a factor.
func NewFactor(name string, levels ...*Level) (*Factor, error) {
	f := &Factor{Name: name, Levels: levels}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// MustFactor is NewFactor for statically known-good designs, e.g. tests.
func MustFactor(name string, levels ...*Level) *Factor {
	f, err := NewFactor(name, levels...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Factor) validate() error {
	if len(f.Levels) == 0 {
		return fmt.Errorf("factor %q has no levels", f.Name)
	}
	derived := f.Levels[0].IsDerived()
	for _, l := range f.Levels {
		if l.Weight < 1 {
			return fmt.Errorf("factor %q level %q has non-positive weight", f.Name, l.Name)
		}
		if l.IsDerived() != derived {
			return fmt.Errorf("factor %q mixes simple and derived levels", f.Name)
		}
		if !l.IsDerived() {
			continue
		}
		if err := l.Window.validate(); err != nil {
			return fmt.Errorf("factor %q level %q: %w", f.Name, l.Name, err)
		}
		first := f.Levels[0].Window
		if l.Window.Width != first.Width || l.Window.Stride != first.Stride ||
			l.Window.Start != first.Start || len(l.Window.Factors) != len(first.Factors) {
			return fmt.Errorf("factor %q levels disagree on window shape", f.Name)
		}
		for i := range l.Window.Factors {
			if l.Window.Factors[i] != first.Factors[i] {
				return fmt.Errorf("factor %q levels disagree on window factors", f.Name)
			}
		}
	}
	return nil
}

// IsDerived reports whether the factor's levels are derived.
func (f *Factor) IsDerived() bool { return f.Levels[0].IsDerived() }

// FirstWindow returns the window shared by this factor's levels, or nil for
// a simple factor.
func (f *Factor) FirstWindow() *Window {
	if !f.IsDerived() {
		return nil
	}
	return f.Levels[0].Window
}

// HasComplexWindow reports whether the factor's window spans more than one
// trial, skips trials, starts late, or chains off another complex factor.
// Complex factors get variables only on the trials they apply to.
func (f *Factor) HasComplexWindow() bool {
	w := f.FirstWindow()
	if w == nil {
		return false
	}
	if w.Width > 1 || w.Stride > 1 || w.Start > 0 {
		return true
	}
	for _, src := range w.Factors {
		if src.HasComplexWindow() {
			return true
		}
	}
	return false
}

// AppliesToTrial reports whether the factor has a value on the given
// 1-based trial. Simple factors apply everywhere. A derived factor first
// applies once its window fits, accounting for any upstream derived
// factor's own preamble, and thereafter every stride trials.
func (f *Factor) AppliesToTrial(trial int) bool {
	if trial <= 0 {
		panic(fmt.Sprintf("trial numbers are 1-based; got %d", trial))
	}
	if !f.IsDerived() {
		return true
	}
	w := f.FirstWindow()
	first := f.accumulatedWidth() + w.Start
	return trial >= first && (trial-first)%w.Stride == 0
}

// accumulatedWidth is the 1-based earliest trial the factor's window can
// cover, widened by upstream complex factors.
func (f *Factor) accumulatedWidth() int {
	w := f.FirstWindow()
	if w == nil {
		return 1
	}
	width := w.Width
	for _, src := range w.Factors {
		if src.HasComplexWindow() {
			width += src.accumulatedWidth() - 1
			break
		}
	}
	return width
}

// GetLevel returns the named level, or nil.
func (f *Factor) GetLevel(name string) *Level {
	for _, l := range f.Levels {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// LevelWeightSum is the factor's contribution to a crossing's size.
func (f *Factor) LevelWeightSum() int {
	sum := 0
	for _, l := range f.Levels {
		sum += l.Weight
	}
	return sum
}

// DerivationDepth is 0 for simple factors and one more than the deepest
// source for derived factors. Cycles are impossible at this level because
// windows reference already-built factors.
func (f *Factor) DerivationDepth() int {
	w := f.FirstWindow()
	if w == nil {
		return 0
	}
	depth := 0
	for _, src := range w.Factors {
		if d := src.DerivationDepth(); d > depth {
			depth = d
		}
	}
	return depth + 1
}
