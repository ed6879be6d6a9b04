package design

// Constraint restricts which trial sequences are acceptable. Constraints are
// declarative; the encoder and the enumerator each interpret them in their
// own terms.
type Constraint interface {
	constraint()
}

// Exclude forbids a level from ever occurring.
type Exclude struct {
	Factor string
	Level  string
}

// Pin requires a level on one specific trial. Trial is 1-based; negative
// values count from the end (-1 is the last trial).
type Pin struct {
	Trial  int
	Factor string
	Level  string
}

// MinimumTrials pads the sequence to at least Trials trials, repeating the
// crossing in whole chunks with a distinct partial chunk at the end.
type MinimumTrials struct {
	Trials int
}

// ExactlyK requires the level to occur exactly K times overall.
type ExactlyK struct {
	K      int
	Factor string
	Level  string
}

// AtMostKInARow bounds consecutive occurrences of a level to K. An empty
// Level applies the bound to every level of the factor.
type AtMostKInARow struct {
	K      int
	Factor string
	Level  string
}

// AtLeastKInARow requires that whenever the level occurs it occurs at least
// K times consecutively. An empty Level applies to every level of the
// factor.
type AtLeastKInARow struct {
	K      int
	Factor string
	Level  string
}

// ExactlyKInARow requires that occurrences of the level come in runs of
// exactly K. An empty Level applies to every level of the factor.
type ExactlyKInARow struct {
	K      int
	Factor string
	Level  string
}

func (Exclude) constraint()        {}
func (Pin) constraint()            {}
func (MinimumTrials) constraint()  {}
func (ExactlyK) constraint()       {}
func (AtMostKInARow) constraint()  {}
func (AtLeastKInARow) constraint() {}
func (ExactlyKInARow) constraint() {}
