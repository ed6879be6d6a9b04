package design

import "fmt"

// Builtin predicates usable by name in design files. Each receives the
// window arguments described on Predicate.

// AllEqual holds when every observed level name is the same, across factors
// and across the window's trials.
func AllEqual(args [][]string) bool {
	var first string
	seen := false
	for _, names := range args {
		for _, n := range names {
			if !seen {
				first, seen = n, true
			} else if n != first {
				return false
			}
		}
	}
	return true
}

// AnyDiffer is the negation of AllEqual.
func AnyDiffer(args [][]string) bool { return !AllEqual(args) }

// Repeats holds for a width-2 window over a single factor when the factor
// keeps its level across the two trials.
func Repeats(args [][]string) bool {
	return len(args) == 1 && len(args[0]) == 2 && args[0][0] == args[0][1]
}

// Switches holds for a width-2 window over a single factor when the factor
// changes level between the two trials.
func Switches(args [][]string) bool {
	return len(args) == 1 && len(args[0]) == 2 && args[0][0] != args[0][1]
}

var builtinPredicates = map[string]Predicate{
	"eq":     AllEqual,
	"ne":     AnyDiffer,
	"repeat": Repeats,
	"switch": Switches,
}

// LookupPredicate resolves a builtin predicate by name.
func LookupPredicate(name string) (Predicate, error) {
	p, ok := builtinPredicates[name]
	if !ok {
		return nil, fmt.Errorf("unknown predicate %q", name)
	}
	return p, nil
}
