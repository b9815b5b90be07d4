// Package board is the owned problem list behind the home page. Handlers
// change it only with records the store has confirmed.
package board

import (
	"sort"
	"strings"
	"sync"

	"obralog/pkg/types"
)

type Board struct {
	mu       sync.RWMutex
	problems []*types.Problem
}

func New(problems []*types.Problem) *Board {
	b := &Board{}
	b.Reconcile(problems)
	return b
}

// Add puts a confirmed new record at the top of the list.
func (b *Board) Add(p *types.Problem) {
	if p == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.problems = append([]*types.Problem{p.Clone()}, b.removeLocked(p.ID)...)
}

// Replace swaps in the confirmed version of a record. Unknown ids are added.
func (b *Board) Replace(p *types.Problem) {
	if p == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.problems {
		if existing.ID == p.ID {
			b.problems[i] = p.Clone()
			return
		}
	}
	b.problems = append([]*types.Problem{p.Clone()}, b.problems...)
}

func (b *Board) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.problems = b.removeLocked(id)
}

func (b *Board) removeLocked(id string) []*types.Problem {
	out := b.problems[:0:0]
	for _, p := range b.problems {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// Reconcile replaces the whole list with the store's view, newest first.
func (b *Board) Reconcile(confirmed []*types.Problem) {
	list := make([]*types.Problem, 0, len(confirmed))
	for _, p := range confirmed {
		if p != nil {
			list = append(list, p.Clone())
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	b.mu.Lock()
	b.problems = list
	b.mu.Unlock()
}

func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.problems)
}

// Snapshot is a deep copy safe to hand to report assemblers.
func (b *Board) Snapshot() []*types.Problem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*types.Problem, 0, len(b.problems))
	for _, p := range b.problems {
		out = append(out, p.Clone())
	}
	return out
}

type Filter struct {
	Search   string
	Severity types.Severity
	Type     types.Tag
	Status   types.Status
}

func (f Filter) Active() bool {
	return strings.TrimSpace(f.Search) != "" || f.Severity != "" || f.Type != "" || f.Status != ""
}

func (f Filter) match(p *types.Problem) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(p.Title + "\n" + p.Description + "\n" + p.Location)
		if !strings.Contains(hay, q) {
			return false
		}
	}

	if f.Severity != "" && p.Severity != f.Severity {
		return false
	}

	if f.Type != "" && !p.Tags.Contains(f.Type) {
		return false
	}

	if f.Status != "" && p.Status != f.Status {
		return false
	}

	return true
}

// Filter returns copies of the matching problems in list order.
func (b *Board) Filter(f Filter) []*types.Problem {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*types.Problem, 0, len(b.problems))
	for _, p := range b.problems {
		if f.match(p) {
			out = append(out, p.Clone())
		}
	}
	return out
}

type Stats struct {
	Total      int
	Resolved   int
	Pending    int
	BySeverity map[types.Severity]int
}

func (b *Board) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Compute(b.problems)
}

func Compute(problems []*types.Problem) Stats {
	s := Stats{BySeverity: make(map[types.Severity]int, len(types.AllSeverities))}
	for _, sev := range types.AllSeverities {
		s.BySeverity[sev] = 0
	}

	for _, p := range problems {
		s.Total++
		if p.IsResolved() {
			s.Resolved++
		} else {
			s.Pending++
		}
		if p.Severity.Valid() {
			s.BySeverity[p.Severity]++
		}
	}
	return s
}
