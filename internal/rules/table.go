package rules

import (
	"fmt"
)

// Family groups implant branches by clinical presentation.
type Family string

const (
	FamilyFracture     Family = "fracture"
	FamilyDegenerative Family = "degenerative"
	FamilyTumor        Family = "tumor"
	FamilyInstability  Family = "instability"
	FamilySoftTissue   Family = "soft_tissue"
	FamilyRevision     Family = "revision"
	FamilyProcedure    Family = "procedure"
)

// Branch is one ordered entry of a Table.
type Branch[R ~string] struct {
	Name   string
	Family Family
	When   Predicate
	Then   R
}

// Table is an ordered first-match decision list with a default. It is
// read-only after construction and safe for concurrent use.
type Table[R ~string] struct {
	Name     string
	Branches []Branch[R]
	Default  R
}

// Match is the outcome of evaluating a Table. Index is -1 when no branch
// matched and the default applied.
type Match[R ~string] struct {
	Result R
	Branch string
	Index  int
}

// DefaultBranch is the branch name reported when a table falls through.
const DefaultBranch = "default"

// Evaluate returns the first branch whose predicate matches s, or the default.
func (t *Table[R]) Evaluate(s Subject) Match[R] {
	for i, b := range t.Branches {
		if b.When.Match(s) {
			return Match[R]{Result: b.Then, Branch: b.Name, Index: i}
		}
	}
	return Match[R]{Result: t.Default, Branch: DefaultBranch, Index: -1}
}

// add appends a branch; declaration order is evaluation order.
func (t *Table[R]) add(name string, family Family, when Predicate, then R) {
	t.Branches = append(t.Branches, Branch[R]{Name: name, Family: family, When: when, Then: then})
}

// Results lists every value the table can produce, default last, without
// duplicates.
func (t *Table[R]) Results() []R {
	seen := make(map[R]bool, len(t.Branches)+1)
	out := make([]R, 0, len(t.Branches)+1)
	for _, b := range t.Branches {
		if !seen[b.Then] {
			seen[b.Then] = true
			out = append(out, b.Then)
		}
	}
	if !seen[t.Default] {
		out = append(out, t.Default)
	}
	return out
}

// Validate checks that every branch is well formed and that every output
// satisfies inDomain.
func (t *Table[R]) Validate(inDomain func(R) bool) error {
	if t.Default == "" {
		return fmt.Errorf("table %s: missing default", t.Name)
	}
	names := make(map[string]bool, len(t.Branches))
	for i, b := range t.Branches {
		if b.Name == "" {
			return fmt.Errorf("table %s: branch %d has no name", t.Name, i)
		}
		if names[b.Name] {
			return fmt.Errorf("table %s: duplicate branch name %s", t.Name, b.Name)
		}
		names[b.Name] = true
		if b.When == nil {
			return fmt.Errorf("table %s: branch %s has no predicate", t.Name, b.Name)
		}
	}
	for _, r := range t.Results() {
		if !inDomain(r) {
			return fmt.Errorf("table %s: result %q is outside the vocabulary", t.Name, r)
		}
	}
	return nil
}
