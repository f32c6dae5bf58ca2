// Package character merges the per-block character lists produced by the
// LLM extract pass into one canonical cast, folding name variations
// together and resolving gender by majority vote.
package character

import (
	"sort"
	"strings"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// qualifierTokens are stripped from the tail of a normalized name, so
// parenthetical delivery annotations like "(thought)" or "(spoken)" never
// split one character into two.
var qualifierTokens = map[string]bool{
	"thought": true, "spoken": true, "inner": true,
	"fantasy": true, "quoted": true, "exclaimed": true,
}

// normalizeKey folds a name or variation down to a comparison key: lowercase,
// parens mapped to spaces, whitespace collapsed, a leading "character" token
// stripped, and trailing qualifier tokens stripped.
func normalizeKey(name string) string {
	s := strings.ToLower(name)
	s = strings.Map(func(r rune) rune {
		if r == '(' || r == ')' {
			return ' '
		}
		return r
	}, s)
	fields := strings.Fields(s)
	if len(fields) > 0 && fields[0] == "character" {
		fields = fields[1:]
	}
	for len(fields) > 1 && qualifierTokens[fields[len(fields)-1]] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func keysFor(c types.Character) []string {
	keys := []string{normalizeKey(c.CanonicalName)}
	for _, v := range c.Variations {
		keys = append(keys, normalizeKey(v))
	}
	return keys
}

// unionFind is a minimal disjoint-set over string keys, used to transitively
// connect character entries that share any variation/canonical name.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// path compression
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Aggregate merges per-block character lists into one canonical cast,
// injecting the reserved Narrator/System entries if absent.
func Aggregate(perBlock [][]types.Character) []types.Character {
	var entries []types.Character
	for _, block := range perBlock {
		entries = append(entries, block...)
	}

	uf := newUnionFind()
	for _, entry := range entries {
		keys := keysFor(entry)
		if len(keys) == 0 {
			continue
		}
		first := keys[0]
		uf.find(first)
		for _, k := range keys[1:] {
			uf.union(first, k)
		}
	}

	type group struct {
		canonicalName  string
		canonicalVars  int // variation count of the winning entry, for tie-break bookkeeping
		firstSeenOrder int
		variations     map[string]string // normalized -> original casing
		genderVotes    map[types.Gender]int
	}
	groups := make(map[string]*group)
	order := make([]string, 0)

	for i, entry := range entries {
		keys := keysFor(entry)
		if len(keys) == 0 {
			continue
		}
		root := uf.find(keys[0])
		g, ok := groups[root]
		if !ok {
			g = &group{
				canonicalVars:  -1,
				firstSeenOrder: i,
				variations:     make(map[string]string),
				genderVotes:    make(map[types.Gender]int),
			}
			groups[root] = g
			order = append(order, root)
		}

		nVars := len(entry.Variations)
		if nVars > g.canonicalVars {
			g.canonicalVars = nVars
			g.canonicalName = entry.CanonicalName
		}

		g.variations[normalizeKey(entry.CanonicalName)] = entry.CanonicalName
		for _, v := range entry.Variations {
			g.variations[normalizeKey(v)] = v
		}
		g.genderVotes[entry.Gender]++
	}

	cast := make([]types.Character, 0, len(order))
	seenCanonicalLower := make(map[string]bool)
	for _, root := range order {
		g := groups[root]
		var variations []string
		for _, original := range g.variations {
			if strings.EqualFold(original, g.canonicalName) {
				continue
			}
			variations = append(variations, original)
		}
		sort.Strings(variations)
		cast = append(cast, types.Character{
			CanonicalName: g.canonicalName,
			Variations:    variations,
			Gender:        resolveGender(g.genderVotes),
		})
		seenCanonicalLower[strings.ToLower(g.canonicalName)] = true
	}

	if !seenCanonicalLower[strings.ToLower(types.ReservedNarrator)] {
		cast = append(cast, types.Character{CanonicalName: types.ReservedNarrator, Gender: types.GenderUnknown})
	}
	if !seenCanonicalLower[strings.ToLower(types.ReservedSystem)] {
		cast = append(cast, types.Character{CanonicalName: types.ReservedSystem, Gender: types.GenderUnknown})
	}
	return cast
}

// resolveGender applies majority vote with any definite vote (male/female)
// beating unknown.
func resolveGender(votes map[types.Gender]int) types.Gender {
	maleVotes := votes[types.GenderMale]
	femaleVotes := votes[types.GenderFemale]

	if maleVotes == 0 && femaleVotes == 0 {
		return types.GenderUnknown
	}
	if maleVotes >= femaleVotes {
		return types.GenderMale
	}
	return types.GenderFemale
}
