// Package voicepool curates the enabled voice catalog into per-gender
// sub-pools and hands out voices in stable round-robin rotation.
package voicepool

import (
	"sync"

	"github.com/mvoss-dev/narrationcast/pkg/types"
)

// Pool curates the enabled voice catalog into per-gender sub-pools.
type Pool struct {
	mu sync.Mutex

	byGender map[types.Gender][]types.Voice
	cursor   map[types.Gender]int
	useCount map[string]int // full_value -> times taken, for least-used selection
	all      []types.Voice
}

// New builds a Pool from the full voice catalog, restricted to the
// enabled full_values. Multilingual/wildcard voices are modeled with
// types.GenderUnknown and satisfy either gender quota (per Open Question 1).
func New(catalog []types.Voice, enabled []string) *Pool {
	enabledSet := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		enabledSet[id] = true
	}

	p := &Pool{
		byGender: make(map[types.Gender][]types.Voice),
		cursor:   make(map[types.Gender]int),
		useCount: make(map[string]int),
	}
	for _, v := range catalog {
		if !enabledSet[v.FullValue] {
			continue
		}
		p.all = append(p.all, v)
		p.byGender[v.Gender] = append(p.byGender[v.Gender], v)
	}
	return p
}

// Take returns a voice_id for the requested gender, rotating round-robin
// over the enabled pool for that gender. For types.GenderUnknown, Take may
// return any gender but prefers the least-used voice across the whole pool.
func (p *Pool) Take(gender types.Gender) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gender == types.GenderUnknown {
		return p.takeLeastUsedLocked()
	}

	voices := p.byGender[gender]
	if len(voices) == 0 {
		return "", false
	}
	idx := p.cursor[gender] % len(voices)
	p.cursor[gender] = idx + 1
	voice := voices[idx]
	p.useCount[voice.FullValue]++
	return voice.FullValue, true
}

func (p *Pool) takeLeastUsedLocked() (string, bool) {
	if len(p.all) == 0 {
		return "", false
	}
	best := p.all[0]
	bestCount := p.useCount[best.FullValue]
	for _, v := range p.all[1:] {
		if c := p.useCount[v.FullValue]; c < bestCount {
			best = v
			bestCount = c
		}
	}
	p.useCount[best.FullValue]++
	return best.FullValue, true
}

// Release returns a voice to the pool for reuse. Because Take rotates
// round-robin rather than checking out exclusively, Release only adjusts
// the least-used bookkeeping used by GenderUnknown selection.
func (p *Pool) Release(voiceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useCount[voiceID] > 0 {
		p.useCount[voiceID]--
	}
}

// Contains reports whether voiceID is one of the enabled voices.
func (p *Pool) Contains(voiceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.all {
		if v.FullValue == voiceID {
			return true
		}
	}
	return false
}

// CountByGender reports how many enabled voices exist for a gender.
func (p *Pool) CountByGender(gender types.Gender) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byGender[gender])
}

// Total reports the total number of enabled voices across all genders.
func (p *Pool) Total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.all)
}
