// Package contentmodel binds concrete RDF vocabulary shapes on top of the
// generic graph package: each registered model supplies a header map for
// the spreadsheet parser, and parse/serialize/validate functions so the
// import and update engines never need to know a resource's vocabulary
// directly.
package contentmodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/spreadsheet"
)

// Model is the capability interface every content model implements: a
// header map for resolving spreadsheet columns, and the ability to
// validate a graph's shape for a resource of this model.
type Model interface {
	// Name is the model's registry key (e.g. "Letter", "Poster", "Newspaper").
	Name() string
	// HeaderMap is the nested attribute-path-to-header-label mapping used
	// by the spreadsheet parser to resolve CSV columns.
	HeaderMap() spreadsheet.HeaderMap
	// IdentifierHeader names the column used as the row-level identifier
	// for logging and percentage-stride selection.
	IdentifierHeader() string
	// Properties maps each attribute this model recognizes to the
	// predicate URI it is stored under, the binding Parse and Serialize
	// use to move between a spreadsheet row and a graph.
	Properties() map[string]string
	// RDFTypes lists the rdf:type values stamped on a newly created
	// resource of this model.
	RDFTypes() []string
	// Validate checks g (the RDF description of one resource of this
	// model) against the model's property cardinality/vocabulary rules.
	Validate(g *graph.Graph, subject graph.Term) ValidationReport
}

// rdfTypePredicate is the predicate used to stamp a resource's types.
const rdfTypePredicate = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// groupEmbeddedFields splits fields into the embedded sub-object groups
// (dotted attrs like "subject.label", keyed by the leading attribute) and
// the remaining top-level (scalar) fields.
func groupEmbeddedFields(fields []spreadsheet.Field) (map[string][]spreadsheet.Field, []spreadsheet.Field) {
	groups := make(map[string][]spreadsheet.Field)
	var scalar []spreadsheet.Field
	for _, f := range fields {
		if i := strings.Index(f.Attr, "."); i >= 0 {
			base := f.Attr[:i]
			groups[base] = append(groups[base], f)
			continue
		}
		scalar = append(scalar, f)
	}
	return groups, scalar
}

// literalFor builds the RDF term a field's raw string value decorates into,
// honoring any language tag or datatype the header carried.
func literalFor(f spreadsheet.Field, value string) graph.Term {
	switch {
	case f.Lang != "":
		return graph.LangLiteral(value, f.Lang)
	case f.Datatype != "":
		return graph.TypedLiteral(value, f.Datatype)
	default:
		return graph.Literal(value)
	}
}

// Parse builds a graph describing subject from row's resolved field values,
// using model's attribute-to-predicate mapping. Top-level attributes are
// added as repeatable (semicolon-split) triples directly on subject.
// Embedded sub-objects (a dotted attr such as "subject.label") are built as
// separate hash-URI subjects, one per value-slot; the slot's fragment id is
// taken from the row's INDEX column when present (preserving identity
// across re-imports), or freshly minted otherwise.
func Parse(model Model, subject graph.Term, row *spreadsheet.Row, fields []spreadsheet.Field) *graph.Graph {
	g := graph.New()
	for _, rdfType := range model.RDFTypes() {
		g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(rdfTypePredicate), Object: graph.URI(rdfType)})
	}
	properties := model.Properties()
	groups, scalarFields := groupEmbeddedFields(fields)

	for _, f := range scalarFields {
		predicateURI, ok := properties[f.Attr]
		if !ok {
			continue
		}
		for _, value := range spreadsheet.SplitMultivalued(row.Get(f.Header)) {
			if value == "" {
				continue
			}
			g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(predicateURI), Object: literalFor(f, value)})
		}
	}

	index, _ := row.Index() // malformed INDEX is rejected by row validation before Parse ever runs

	for base, group := range groups {
		linkPredicate, ok := properties[base]
		if !ok {
			continue
		}
		valuesByHeader := make(map[string][]string, len(group))
		n := 0
		for _, f := range group {
			values := spreadsheet.SplitMultivalued(row.Get(f.Header))
			valuesByHeader[f.Header] = values
			if len(values) > n {
				n = len(values)
			}
		}
		if n == 0 {
			continue
		}
		fragments := index[base]
		for i := 0; i < n; i++ {
			fragment, ok := fragments[i]
			if !ok {
				fragment = uuid.NewString()
			}
			embedded := graph.URI(subject.Value + "#" + fragment)
			g.Add(graph.Triple{Subject: subject, Predicate: graph.URI(linkPredicate), Object: embedded})
			for _, f := range group {
				values := valuesByHeader[f.Header]
				if i >= len(values) || values[i] == "" {
					continue
				}
				predicateURI, ok := properties[f.Attr]
				if !ok {
					continue
				}
				g.Add(graph.Triple{Subject: embedded, Predicate: graph.URI(predicateURI), Object: literalFor(f, values[i])})
			}
		}
	}
	return g
}

// Serialize renders every property value of subject in g back into row
// data, keyed by header label, the inverse of Parse, turning an existing
// resource's description back into spreadsheet form. The module has no
// template emitter that calls it. Embedded sub-objects are rediscovered
// by their hash-URI and reported back out through an INDEX column entry, so
// their fragment ids survive a parse/serialize/parse cycle unchanged.
func Serialize(model Model, g *graph.Graph, subject graph.Term, fields []spreadsheet.Field) map[string]string {
	data := make(map[string]string)
	properties := model.Properties()
	groups, scalarFields := groupEmbeddedFields(fields)

	for _, f := range scalarFields {
		predicateURI, ok := properties[f.Attr]
		if !ok {
			continue
		}
		var values []string
		for _, t := range g.Triples() {
			if !t.Subject.Equal(subject) || !t.Predicate.IsURI() || t.Predicate.Value != predicateURI {
				continue
			}
			if f.Lang != "" && t.Object.Lang != f.Lang {
				continue
			}
			if f.Datatype != "" && t.Object.Datatype != f.Datatype {
				continue
			}
			values = append(values, t.Object.Value)
		}
		if len(values) > 0 {
			data[f.Header] = strings.Join(values, ";")
		}
	}

	var indexEntries []string
	prefix := subject.Value + "#"
	for base, group := range groups {
		linkPredicate, ok := properties[base]
		if !ok {
			continue
		}
		var embeddeds []graph.Term
		for _, t := range g.Triples() {
			if t.Subject.Equal(subject) && t.Predicate.IsURI() && t.Predicate.Value == linkPredicate &&
				t.Object.IsURI() && strings.HasPrefix(t.Object.Value, prefix) {
				embeddeds = append(embeddeds, t.Object)
			}
		}
		sort.Slice(embeddeds, func(i, j int) bool { return embeddeds[i].Value < embeddeds[j].Value })

		valuesByHeader := make(map[string][]string, len(group))
		for i, embedded := range embeddeds {
			fragment := strings.TrimPrefix(embedded.Value, prefix)
			indexEntries = append(indexEntries, fmt.Sprintf("%s[%d]=#%s", base, i, fragment))
			for _, f := range group {
				predicateURI, ok := properties[f.Attr]
				if !ok {
					continue
				}
				value := ""
				for _, t := range g.Triples() {
					if !t.Subject.Equal(embedded) || !t.Predicate.IsURI() || t.Predicate.Value != predicateURI {
						continue
					}
					if f.Lang != "" && t.Object.Lang != f.Lang {
						continue
					}
					if f.Datatype != "" && t.Object.Datatype != f.Datatype {
						continue
					}
					value = t.Object.Value
					break
				}
				valuesByHeader[f.Header] = append(valuesByHeader[f.Header], value)
			}
		}
		for header, values := range valuesByHeader {
			data[header] = strings.Join(values, ";")
		}
	}
	if len(indexEntries) > 0 {
		sort.Strings(indexEntries)
		data["INDEX"] = strings.Join(indexEntries, ";")
	}
	return data
}

// ValidationReport is the result of validating one resource: a map from
// property name to a human-readable failure reason, empty when the
// resource is entirely valid.
type ValidationReport map[string]string

// Valid reports whether the report recorded no failures.
func (r ValidationReport) Valid() bool { return len(r) == 0 }

var registry = map[string]Model{}

// Register adds a model to the static registry, keyed by its own Name().
// No model registers itself; the code that constructs a model calls it.
func Register(m Model) {
	registry[m.Name()] = m
}

// ErrModelNotFound is returned by Get when no model with the given name
// has been registered.
type ErrModelNotFound struct{ Name string }

func (e *ErrModelNotFound) Error() string { return fmt.Sprintf("no registered content model %q", e.Name) }

// Get looks up a registered model by name.
func Get(name string) (Model, error) {
	m, ok := registry[name]
	if !ok {
		return nil, &ErrModelNotFound{Name: name}
	}
	return m, nil
}

// Names returns every registered model name.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
