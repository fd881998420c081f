package graph

import (
	"sort"
	"strings"
)

// Triple is a single (subject, predicate, object) statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// N3 renders a triple as a single N-Triples statement, terminated by " .".
func (t Triple) N3() string {
	return t.Subject.N3() + " " + t.Predicate.N3() + " " + t.Object.N3() + " ."
}

// key is a comparable identity for a triple, used for set membership.
func (t Triple) key() string {
	return t.Subject.N3() + "\x00" + t.Predicate.N3() + "\x00" + t.Object.N3()
}

// Graph is an unordered set of triples plus a namespace prefix table used
// only for human-readable rendering (not required for correctness).
type Graph struct {
	triples    map[string]Triple
	namespaces map[string]string // prefix -> URI
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{triples: make(map[string]Triple), namespaces: make(map[string]string)}
}

// Bind records a namespace prefix for rendering purposes.
func (g *Graph) Bind(prefix, uri string) {
	g.namespaces[prefix] = uri
}

// Add inserts a triple, if not already present. Returns true if the graph
// changed.
func (g *Graph) Add(t Triple) bool {
	k := t.key()
	if _, exists := g.triples[k]; exists {
		return false
	}
	g.triples[k] = t
	return true
}

// Remove deletes a triple if present. Returns true if the graph changed.
func (g *Graph) Remove(t Triple) bool {
	k := t.key()
	if _, exists := g.triples[k]; !exists {
		return false
	}
	delete(g.triples, k)
	return true
}

// Contains reports whether t is present in the graph.
func (g *Graph) Contains(t Triple) bool {
	_, ok := g.triples[t.key()]
	return ok
}

// Len returns the number of triples in the graph.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns all triples in the graph in a stable (sorted) order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, 0, len(g.triples))
	for _, t := range g.triples {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// ForEachSubjectObject rewrites every triple's subject and object in place
// using fn; if fn changes either term, the triple is replaced. Used by the
// transaction client to rewrite every subject/object position recursively,
// as required by spec §4.4.
func (g *Graph) ForEachSubjectObject(fn func(Term) Term) {
	next := make(map[string]Triple, len(g.triples))
	for _, t := range g.triples {
		rewritten := Triple{
			Subject:   fn(t.Subject),
			Predicate: t.Predicate,
			Object:    fn(t.Object),
		}
		next[rewritten.key()] = rewritten
	}
	g.triples = next
}

// SerializeNTriples renders the graph as an N-Triples document, one
// statement per line, in a stable order.
func (g *Graph) SerializeNTriples() string {
	triples := g.Triples()
	lines := make([]string, 0, len(triples))
	for _, t := range triples {
		lines = append(lines, t.N3())
	}
	return strings.Join(lines, "\n")
}

// Diff returns the triples present in have but not in want (toDelete) and
// those present in want but not in have (toInsert) -- a thin helper used by
// BuildSPARQLUpdate callers that already have two full Graph values.
func Diff(have, want *Graph) (toDelete, toInsert *Graph) {
	toDelete = New()
	toInsert = New()
	for _, t := range have.Triples() {
		if !want.Contains(t) {
			toDelete.Add(t)
		}
	}
	for _, t := range want.Triples() {
		if !have.Contains(t) {
			toInsert.Add(t)
		}
	}
	return toDelete, toInsert
}
