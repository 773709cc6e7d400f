// Package gate implements the Output Gate (spec.md Section 4.6): it
// validates user-selected outputs against the Input Shape and decides
// which reports are legal to produce.
//
// Per the "polymorphic columnCount==2 branch" redesign flag, this package
// is the sole authority on the ambiguous 2-column case: the classifier may
// leave InferredRoles empty for an ambiguous split, but the gate always
// keys its own decisions on FirstColumnURLShare and InferredRoles
// membership directly rather than re-deriving a second, looser rule.
package gate

import (
	"fmt"

	"github.com/sitecrawl/orchestrator/internal/classify"
	"github.com/sitecrawl/orchestrator/internal/config"
)

// Error names one rejected output and the reason.
type Error struct {
	Key    config.OutputKind
	Reason string
}

func (e Error) Error() string { return fmt.Sprintf("%s: %s", e.Key, e.Reason) }

// Result is the gate's verdict: ok when every requested output is legal.
type Result struct {
	OK     bool
	Errors []Error
}

// alwaysAllowed outputs never depend on the input shape.
var alwaysAllowed = map[config.OutputKind]bool{
	config.OutputURLs:          true,
	config.OutputSiteCatalog:   true,
	config.OutputInternalLinks: true,
	config.OutputTree:          true,
}

// Evaluate checks each requested output against shape, per the rules in
// spec.md Section 4.6.
func Evaluate(shape classify.Shape, outputs []config.OutputKind) Result {
	result := Result{OK: true}
	for _, out := range outputs {
		if err := evaluateOne(shape, out); err != nil {
			result.OK = false
			result.Errors = append(result.Errors, *err)
		}
	}
	return result
}

func evaluateOne(shape classify.Shape, out config.OutputKind) *Error {
	if alwaysAllowed[out] {
		return nil
	}

	switch out {
	case config.OutputExistenceCSV:
		if !shape.Exists {
			return &Error{Key: out, Reason: "no input file was provided"}
		}
		if shape.FirstColumnURLShare < 0.6 && !shape.HasRole(classify.RoleURL) {
			return &Error{Key: out, Reason: "first column must look like URLs"}
		}
		return nil
	case config.OutputComparisonCSV:
		if !shape.Exists {
			return &Error{Key: out, Reason: "no input file was provided"}
		}
		if !shape.HasRole(classify.RoleTitle) && !shape.HasRole(classify.RoleDescription) {
			return &Error{Key: out, Reason: "input has no usable title and/or description column"}
		}
		return nil
	default:
		return &Error{Key: out, Reason: "unknown output kind"}
	}
}
