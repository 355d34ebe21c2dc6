package domain

import "fmt"

// EquivalenceVerdict is the outcome of one equivalence check: empty Errors
// means valid. Every violated rule is reported, not just the first.
type EquivalenceVerdict struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// OKVerdict returns a passing verdict.
func OKVerdict() EquivalenceVerdict {
	return EquivalenceVerdict{Valid: true}
}

// AddErrorf records a violation and marks the verdict invalid.
func (v *EquivalenceVerdict) AddErrorf(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.Valid = false
}

// ApplyResult is the outcome of turning an agent response into a single
// rewritten SQL statement.
type ApplyResult struct {
	Success      bool   `json:"success"`
	OptimizedSQL string `json:"optimized_sql"`
	Transform    string `json:"transform"`
	Error        string `json:"error,omitempty"`
}

// Mismatch is one concrete differing cell between the two result sets,
// reported to aid diagnosis.
type Mismatch struct {
	Row       int    `json:"row"`
	Column    string `json:"column"`
	Original  string `json:"original"`
	Rewritten string `json:"rewritten"`
}

// ComparisonResult is the outcome of executing both queries over one
// witness variant. Indeterminate means an execution error or timeout
// prevented a correctness finding either way.
type ComparisonResult struct {
	RowCountsEqual bool       `json:"row_counts_equal"`
	ValuesEqual    bool       `json:"values_equal"`
	Indeterminate  bool       `json:"indeterminate"`
	Reason         string     `json:"reason,omitempty"`
	Mismatches     []Mismatch `json:"mismatches,omitempty"`
}

// Equal reports whether the comparison found the result sets identical.
func (c ComparisonResult) Equal() bool {
	return !c.Indeterminate && c.RowCountsEqual && c.ValuesEqual
}

// MutationOutcome records one best-effort population mutation: applied, or
// skipped with a reason. Callers inspect the manifest to judge witness
// quality.
type MutationOutcome struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	Row     int    `json:"row"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// WitnessResult is the dynamic validation outcome for one variant.
type WitnessResult struct {
	Variant    string            `json:"variant"`
	Comparison ComparisonResult  `json:"comparison"`
	Manifest   []MutationOutcome `json:"manifest,omitempty"`
}

// Rigor selects how much of the pipeline a verification request runs.
type Rigor string

// Rigor levels, cheapest first.
const (
	RigorStructural Rigor = "structural" // static checks only
	RigorStandard   Rigor = "standard"   // static + clone witness
	RigorFull       Rigor = "full"       // static + clone + boundary_fail
)

// Valid reports whether r is a known rigor level.
func (r Rigor) Valid() bool {
	switch r {
	case RigorStructural, RigorStandard, RigorFull:
		return true
	}
	return false
}

// VerificationReport is the combined determination for one rewrite
// candidate at the requested rigor level. Equivalent requires the
// structural verdict and every witness run to pass.
type VerificationReport struct {
	Equivalent    bool               `json:"equivalent"`
	Indeterminate bool               `json:"indeterminate"`
	Apply         ApplyResult        `json:"apply"`
	Structural    EquivalenceVerdict `json:"structural"`
	Witnesses     []WitnessResult    `json:"witnesses,omitempty"`
}
