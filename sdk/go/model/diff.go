package model

import (
	"slices"

	"github.com/pmezard/go-difflib/difflib"
)

// DiffResult is the membership change between a graph's loaded compendia and
// its working copy.
type DiffResult struct {
	Added   []string
	Removed []string
}

// Empty reports whether there is nothing to sync.
func (d DiffResult) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Pair is a named id list.
type Pair struct {
	Name string
	IDs  []string
}

// Pairs returns the result as ("added", ids), ("removed", ids).
func (d DiffResult) Pairs() [2]Pair {
	return [2]Pair{{"added", d.Added}, {"removed", d.Removed}}
}

// Diff compares two membership sequences. Every element of both sides is
// resolved to an id first; the first element without one fails the whole
// call. Reordering an unchanged id is reported as neither added nor removed.
func Diff(original, current []Ref) (DiffResult, error) {
	// Validate both sides before computing anything.
	cur, err := ExtractIDs(current)
	if err != nil {
		return DiffResult{}, err
	}
	orig, err := ExtractIDs(original)
	if err != nil {
		return DiffResult{}, err
	}
	return diffIDs(orig, cur), nil
}

func diffIDs(orig, cur []string) DiffResult {
	res := DiffResult{Added: []string{}, Removed: []string{}}
	m := difflib.NewMatcher(orig, cur)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			continue
		case 'd':
			res.Removed = appendMissing(res.Removed, orig[op.I1:op.I2], cur)
		case 'i':
			res.Added = appendMissing(res.Added, cur[op.J1:op.J2], orig)
		default: // 'r'
			res.Added = appendMissing(res.Added, cur[op.J1:op.J2], orig)
			res.Removed = appendMissing(res.Removed, orig[op.I1:op.I2], cur)
		}
	}
	return res
}

// appendMissing appends the ids of candidates that do not occur in other.
func appendMissing(dst, candidates, other []string) []string {
	for _, id := range candidates {
		if slices.Contains(other, id) {
			continue
		}
		dst = append(dst, id)
	}
	return dst
}
