// Package filters implements the OR-of-AND predicate structure attached to a
// dataset: the top level is a list of filter groups with OR semantics, each
// group an ordered list of (name, operator, value) parameter tests with AND
// semantics. Groups compile into record predicates and vectorized
// index-table masks; compilation results are cached by the owning dataset
// and invalidated on any filter or resource mutation.
package filters

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/pacbioseq/dataset/reader"
)

// Op is a comparison operator in a parameter test.
type Op string

// Comparison operators. Parsing accepts the single-character spellings used
// in the XML record format ("=", "!=", ">", "<", ">=", "<=").
const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpGt Op = ">"
	OpLt Op = "<"
	OpGe Op = ">="
	OpLe Op = "<="
)

// ParseOp normalizes an operator spelling.
func ParseOp(s string) (Op, error) {
	switch s {
	case "=", "==", "eq":
		return OpEq, nil
	case "!=", "ne":
		return OpNe, nil
	case ">", "gt":
		return OpGt, nil
	case "<", "lt":
		return OpLt, nil
	case ">=", "gte":
		return OpGe, nil
	case "<=", "lte":
		return OpLe, nil
	}
	return "", errors.E("filters: unknown operator", s)
}

// Param is one parameter test, e.g. {Name: "rq", Op: OpGt, Value: "0.85"}.
type Param struct {
	Name  string
	Op    Op
	Value string
}

func (p Param) String() string {
	return fmt.Sprintf("%s %s %s", p.Name, p.Op, p.Value)
}

// compare returns true if got <op> want, comparing numerically when both
// sides parse as numbers and lexically otherwise.
func compare(op Op, got, want string) bool {
	gf, gerr := strconv.ParseFloat(got, 64)
	wf, werr := strconv.ParseFloat(want, 64)
	var c int
	if gerr == nil && werr == nil {
		switch {
		case gf < wf:
			c = -1
		case gf > wf:
			c = 1
		}
	} else {
		c = strings.Compare(got, want)
	}
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	case OpGe:
		return c >= 0
	case OpLe:
		return c <= 0
	}
	return false
}

// Filter is one AND group of parameter tests.
type Filter []Param

func (f Filter) String() string {
	parts := make([]string, len(f))
	for i, p := range f {
		parts[i] = p.String()
	}
	return "( " + strings.Join(parts, " AND ") + " )"
}

// paramValue extracts the attribute named by p.Name from a record. The
// second return is false when the record does not carry the attribute, in
// which case the test fails.
func paramValue(name string, rec *reader.Record) (string, bool) {
	switch name {
	case "rname":
		return rec.RefName, rec.RefName != ""
	case "tstart", "tStart":
		return strconv.Itoa(int(rec.TStart)), rec.Mapped()
	case "tend", "tEnd":
		return strconv.Itoa(int(rec.TEnd)), rec.Mapped()
	case "qstart", "qStart":
		return strconv.Itoa(int(rec.QStart)), true
	case "qend", "qEnd":
		return strconv.Itoa(int(rec.QEnd)), true
	case "zm", "zmw":
		return strconv.Itoa(int(rec.HoleNumber)), true
	case "movie":
		return rec.Movie, rec.Movie != ""
	case "rq":
		return strconv.FormatFloat(float64(rec.ReadQual), 'f', -1, 32), true
	case "length":
		return strconv.FormatInt(rec.Length(), 10), true
	case "bc":
		return BarcodePair(rec.BcForward, rec.BcReverse), true
	case "qname", "id":
		return rec.Name, rec.Name != ""
	}
	return "", false
}

// Test evaluates every parameter test in the group against rec.
func (f Filter) Test(rec *reader.Record) bool {
	for _, p := range f {
		got, ok := paramValue(p.Name, rec)
		if !ok || !compare(p.Op, got, p.Value) {
			return false
		}
	}
	return true
}

// BarcodePair formats a barcode pair the way the "bc" filter parameter
// stores it.
func BarcodePair(forward, reverse int16) string {
	return fmt.Sprintf("[%d, %d]", forward, reverse)
}

// ParseBarcodePair inverts BarcodePair.
func ParseBarcodePair(s string) (int16, int16, error) {
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, errors.E("filters: malformed barcode pair", s)
	}
	f, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	r, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return int16(f), int16(r), nil
}

// Predicate tests one record.
type Predicate func(*reader.Record) bool

// Filters is the OR-of-AND filter set of a dataset. The zero value matches
// every record.
type Filters struct {
	groups []Filter
}

// Groups returns the filter groups. The caller must not mutate them.
func (fs *Filters) Groups() []Filter { return fs.groups }

// Len returns the number of OR groups.
func (fs *Filters) Len() int { return len(fs.groups) }

// Empty reports whether no filter groups are present.
func (fs *Filters) Empty() bool { return len(fs.groups) == 0 }

// AddGroup appends one OR group.
func (fs *Filters) AddGroup(g Filter) {
	fs.groups = append(fs.groups, g)
}

// Req is one (operator, value) alternative handed to AddRequirement.
type Req struct {
	Op    Op
	Value string
}

// AddRequirement extends the filter set with parallel parameter
// requirements. Every slice in reqs must have the same length L; for each
// existing group (or a single empty group when none exist) and each i < L, a
// new group is emitted extending the old one with one test per named
// parameter, built from the i'th alternative. Successive calls therefore AND
// onto every group, while alternatives within one call fan out as OR.
func (fs *Filters) AddRequirement(reqs map[string][]Req) error {
	width := -1
	names := make([]string, 0, len(reqs))
	for name, alts := range reqs {
		if width == -1 {
			width = len(alts)
		} else if len(alts) != width {
			return errors.E("filters: requirement lists must have equal lengths")
		}
		names = append(names, name)
	}
	if width <= 0 {
		return nil
	}
	sort.Strings(names)
	base := fs.groups
	if len(base) == 0 {
		base = []Filter{nil}
	}
	var out []Filter
	for _, g := range base {
		for i := 0; i < width; i++ {
			ng := make(Filter, len(g), len(g)+len(names))
			copy(ng, g)
			for _, name := range names {
				ng = append(ng, Param{Name: name, Op: reqs[name][i].Op, Value: reqs[name][i].Value})
			}
			out = append(out, ng)
		}
	}
	fs.groups = out
	return nil
}

// CrossExtend replaces the group list with the cross product of the
// existing groups (one empty group when none exist) and exts: every
// existing group is AND-extended by each extension group in turn, the
// extensions fanning out as OR. Splitters use this to constrain each chunk
// to its assigned windows while preserving the parent's filters.
func (fs *Filters) CrossExtend(exts []Filter) {
	if len(exts) == 0 {
		return
	}
	base := fs.groups
	if len(base) == 0 {
		base = []Filter{nil}
	}
	out := make([]Filter, 0, len(base)*len(exts))
	for _, g := range base {
		for _, ext := range exts {
			ng := make(Filter, len(g), len(g)+len(ext))
			copy(ng, g)
			ng = append(ng, ext...)
			out = append(out, ng)
		}
	}
	fs.groups = out
}

// Merge unions the groups of other into fs, skipping groups already present.
func (fs *Filters) Merge(other Filters) {
	seen := make(map[string]bool, len(fs.groups))
	for _, g := range fs.groups {
		seen[g.String()] = true
	}
	for _, g := range other.groups {
		if !seen[g.String()] {
			fs.groups = append(fs.groups, g.copy())
			seen[g.String()] = true
		}
	}
}

func (f Filter) copy() Filter {
	ng := make(Filter, len(f))
	copy(ng, f)
	return ng
}

// Copy deep-copies the filter set.
func (fs Filters) Copy() Filters {
	out := Filters{groups: make([]Filter, len(fs.groups))}
	for i, g := range fs.groups {
		out.groups[i] = g.copy()
	}
	return out
}

// TestCompatibility reports whether two filter sets may be merged: the
// groups must be equal as sets. Callers merging into an empty dataset bypass
// this check.
func (fs Filters) TestCompatibility(other Filters) bool {
	if len(fs.groups) != len(other.groups) {
		return false
	}
	a := make([]string, len(fs.groups))
	b := make([]string, len(other.groups))
	for i, g := range fs.groups {
		a[i] = g.String()
	}
	for i, g := range other.groups {
		b[i] = g.String()
	}
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Tests compiles the filter set into one predicate per OR group. An empty
// set compiles to nil; callers treat that as always-true.
func (fs Filters) Tests() []Predicate {
	if len(fs.groups) == 0 {
		return nil
	}
	out := make([]Predicate, len(fs.groups))
	for i, g := range fs.groups {
		g := g
		out[i] = g.Test
	}
	return out
}

// TestParam evaluates only the parameter tests named name against value: a
// group passes if all of its tests for that parameter pass (vacuously when
// it has none), and the set passes if any group does. Used to pre-filter
// reference tables by rname and contig tables by id.
func (fs Filters) TestParam(name, value string) bool {
	if len(fs.groups) == 0 {
		return true
	}
	for _, g := range fs.groups {
		pass := true
		for _, p := range g {
			if p.Name != name {
				continue
			}
			if !compare(p.Op, value, p.Value) {
				pass = false
				break
			}
		}
		if pass {
			return true
		}
	}
	return false
}

func (fs Filters) String() string {
	if len(fs.groups) == 0 {
		return "( )"
	}
	parts := make([]string, len(fs.groups))
	for i, g := range fs.groups {
		parts[i] = g.String()
	}
	return strings.Join(parts, " OR ")
}
