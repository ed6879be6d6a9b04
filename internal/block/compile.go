package block

import (
	"fmt"

	"github.com/trialgen/trialgen/internal/cnf"
)

// Compile lowers the request into one concrete CNF: the raw fragments are
// appended as-is and every cardinality request is expanded into an
// arithmetic counting circuit.
func (r *BackendRequest) Compile() (*cnf.CNF, error) {
	out := cnf.New(r.NextVar - 1)
	out.Append(r.Fragments)
	for _, req := range r.Requests {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		var err error
		switch req.Comparison {
		case EQ:
			err = out.AssertKOfN(req.K, req.Variables)
		case LT:
			err = out.AssertKLessThanN(req.K, req.Variables)
		case GT:
			err = out.AssertKGreaterThanN(req.K, req.Variables)
		}
		if err != nil {
			return nil, fmt.Errorf("compiling %s %d request over %d variables: %w",
				req.Comparison, req.K, len(req.Variables), err)
		}
	}
	return out, nil
}
