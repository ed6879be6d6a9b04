package block

import (
	"fmt"

	"github.com/trialgen/trialgen/internal/logic"
)

// Comparison is the relation a cardinality request asserts between the
// count of true variables and its threshold.
type Comparison string

const (
	EQ Comparison = "EQ"
	LT Comparison = "LT"
	GT Comparison = "GT"
)

// LowLevelRequest asks a backend to constrain the number of true variables
// among Variables to be equal to, less than, or greater than K.
type LowLevelRequest struct {
	Comparison Comparison
	K          int
	Variables  []int
}

// Validate rejects malformed requests before they reach a backend.
func (r LowLevelRequest) Validate() error {
	switch r.Comparison {
	case EQ, LT, GT:
	default:
		return fmt.Errorf("unknown comparison %q", r.Comparison)
	}
	if len(r.Variables) == 0 {
		return fmt.Errorf("cardinality request over no variables")
	}
	for _, v := range r.Variables {
		if v < 1 {
			return fmt.Errorf("cardinality request references non-positive variable %d", v)
		}
	}
	return nil
}

// BackendRequest accumulates everything one synthesis run needs from a
// solver backend: raw CNF fragments, cardinality requests, and the running
// fresh-variable counter shared by all of them.
type BackendRequest struct {
	Fragments [][]int
	Requests  []LowLevelRequest

	// NextVar is the lowest unused variable number.
	NextVar int
}

// NewBackendRequest starts a request whose fresh variables begin after the
// block's own.
func (b *Block) NewBackendRequest() *BackendRequest {
	return &BackendRequest{NextVar: b.VariablesPerSample() + 1}
}

// GetFresh allocates one fresh variable.
func (r *BackendRequest) GetFresh() int {
	v := r.NextVar
	r.NextVar++
	return v
}

// AddFormula compiles a formula with the given strategy and appends the
// resulting clauses, advancing the fresh counter past any variables the
// strategy allocated.
func (r *BackendRequest) AddFormula(f logic.Formula, strategy logic.Strategy) error {
	cnf, next := strategy(f, r.NextVar)
	clauses, err := logic.Clauses(cnf)
	if err != nil {
		return err
	}
	r.Fragments = append(r.Fragments, clauses...)
	r.NextVar = next
	return nil
}

// AddClauses appends pre-built clauses.
func (r *BackendRequest) AddClauses(clauses ...[]int) {
	r.Fragments = append(r.Fragments, clauses...)
}

// AddRequest validates and appends one cardinality request.
func (r *BackendRequest) AddRequest(req LowLevelRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	r.Requests = append(r.Requests, req)
	return nil
}
