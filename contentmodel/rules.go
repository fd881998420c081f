package contentmodel

import (
	"fmt"
	"regexp"

	"github.com/umd-lib/plastron-go/graph"
)

// Rule is a single validation predicate over one property's value list. It
// returns ("", true) when the property passes, or a failure reason and
// false otherwise.
type Rule func(values []graph.Term) (reason string, ok bool)

// NonEmpty fails if every value is the empty string.
func NonEmpty() Rule {
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if v.Value != "" {
				return "", true
			}
		}
		return "must not be empty", false
	}
}

// Required fails if there are no values at all.
func Required() Rule {
	return func(values []graph.Term) (string, bool) {
		if len(values) == 0 {
			return "is required", false
		}
		return "", true
	}
}

// MinValues fails if there are fewer than n values.
func MinValues(n int) Rule {
	return func(values []graph.Term) (string, bool) {
		if len(values) < n {
			return fmt.Sprintf("must have at least %d value(s), has %d", n, len(values)), false
		}
		return "", true
	}
}

// MaxValues fails if there are more than n values.
func MaxValues(n int) Rule {
	return func(values []graph.Term) (string, bool) {
		if len(values) > n {
			return fmt.Sprintf("must have at most %d value(s), has %d", n, len(values)), false
		}
		return "", true
	}
}

// Exactly fails unless there are exactly n values.
func Exactly(n int) Rule {
	return func(values []graph.Term) (string, bool) {
		if len(values) != n {
			return fmt.Sprintf("must have exactly %d value(s), has %d", n, len(values)), false
		}
		return "", true
	}
}

// AllowedValues fails if any value's lexical form is not among allowed.
func AllowedValues(allowed []string) Rule {
	set := make(map[string]bool, len(allowed))
	for _, v := range allowed {
		set[v] = true
	}
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if !set[v.Value] {
				return fmt.Sprintf("value %q is not an allowed value", v.Value), false
			}
		}
		return "", true
	}
}

// FromVocabulary fails if any value is not a subject URI of the named
// vocabulary graph, fetching and caching that graph on first use via
// cache. A term missing from the cached subject set
// triggers one re-fetch of the vocabulary graph before the rule is allowed
// to fail, so a term added upstream after the cache was populated passes
// without requiring a process restart.
func FromVocabulary(cache *VocabularyCache, vocabURI string) Rule {
	return func(values []graph.Term) (string, bool) {
		subjects, err := cache.Subjects(vocabURI)
		if err != nil {
			return fmt.Sprintf("cannot load vocabulary %s: %v", vocabURI, err), false
		}
		refreshed := false
		for _, v := range values {
			if subjects[v.Value] {
				continue
			}
			if !refreshed {
				refreshed = true
				if fresh, err := cache.Refresh(vocabURI); err == nil {
					subjects = fresh
				}
			}
			if !subjects[v.Value] {
				return fmt.Sprintf("value %q is not a term in vocabulary %s", v.Value, vocabURI), false
			}
		}
		return "", true
	}
}

// ValuePattern fails if any value's lexical form does not match pattern.
func ValuePattern(pattern string) Rule {
	re := regexp.MustCompile(pattern)
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if !re.MatchString(v.Value) {
				return fmt.Sprintf("value %q does not match pattern %s", v.Value, pattern), false
			}
		}
		return "", true
	}
}

// Function wraps an arbitrary predicate over the whole value list as a Rule,
// for validation shapes that don't fit the other named rules.
func Function(name string, fn func(values []graph.Term) bool) Rule {
	return func(values []graph.Term) (string, bool) {
		if !fn(values) {
			return fmt.Sprintf("failed validation rule %q", name), false
		}
		return "", true
	}
}

// PropertyRules is one property's full set of rules, applied in order; the
// first failing rule is the recorded reason (later rules on the same
// property are skipped, matching the original's short-circuit behavior).
type PropertyRules struct {
	Property string
	Rules    []Rule
}

// Validate runs every PropertyRules entry against the objects g records for
// subject on that property's predicate URI, short-circuiting each property
// at its first failing rule.
func Validate(g *graph.Graph, subject graph.Term, properties map[string]string, rules []PropertyRules) ValidationReport {
	report := make(ValidationReport)
	for _, pr := range rules {
		predicateURI, ok := properties[pr.Property]
		if !ok {
			continue
		}
		values := objectsOf(g, subject, predicateURI)
		for _, rule := range pr.Rules {
			if reason, ok := rule(values); !ok {
				report[pr.Property] = reason
				break
			}
		}
	}
	return report
}

func objectsOf(g *graph.Graph, subject graph.Term, predicateURI string) []graph.Term {
	var out []graph.Term
	for _, t := range g.Triples() {
		if t.Subject.Equal(subject) && t.Predicate.IsURI() && t.Predicate.Value == predicateURI {
			out = append(out, t.Object)
		}
	}
	return out
}
