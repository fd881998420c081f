package graph

import "testing"

func TestBuildSPARQLUpdateBothEmpty(t *testing.T) {
	if got := BuildSPARQLUpdate(nil, nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if got := BuildSPARQLUpdate(New(), New()); got != "" {
		t.Fatalf("expected empty string for empty graphs, got %q", got)
	}
}

func TestBuildSPARQLUpdateInsertsOnly(t *testing.T) {
	inserts := New()
	inserts.Add(Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("v")})
	got := BuildSPARQLUpdate(nil, inserts)
	if got == "" || got[:11] != "INSERT DATA" {
		t.Fatalf("expected INSERT DATA statement, got %q", got)
	}
}

func TestBuildSPARQLUpdateDeletesOnly(t *testing.T) {
	deletes := New()
	deletes.Add(Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("v")})
	got := BuildSPARQLUpdate(deletes, nil)
	if got == "" || got[:11] != "DELETE DATA" {
		t.Fatalf("expected DELETE DATA statement, got %q", got)
	}
}

func TestBuildSPARQLUpdateBoth(t *testing.T) {
	deletes := New()
	deletes.Add(Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("old")})
	inserts := New()
	inserts.Add(Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("new")})
	got := BuildSPARQLUpdate(deletes, inserts)
	if got == "" {
		t.Fatal("expected non-empty statement")
	}
	if got[:6] != "DELETE" {
		t.Fatalf("expected statement to start with DELETE, got %q", got)
	}
}

func TestBuildSPARQLUpdateRemovesCommonTriples(t *testing.T) {
	common := Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("same")}
	deletes := New()
	deletes.Add(common)
	deletes.Add(Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("old")})
	inserts := New()
	inserts.Add(common)
	inserts.Add(Triple{Subject: URI("http://ex/s"), Predicate: URI("http://ex/p"), Object: Literal("new")})

	got := BuildSPARQLUpdate(deletes, inserts)
	if deletes.Contains(common) || inserts.Contains(common) {
		t.Fatal("common triple should have been removed from both sides")
	}
	if got == "" {
		t.Fatal("expected a statement containing the distinct triples")
	}
}

func TestForEachSubjectObjectRewritesURIs(t *testing.T) {
	g := New()
	g.Add(Triple{
		Subject:   URI("http://h/rest/x/y"),
		Predicate: URI("http://ex/p"),
		Object:    URI("http://h/rest/x/z"),
	})
	g.ForEachSubjectObject(func(term Term) Term {
		return term.WithPrefixReplaced("http://h/rest", "http://h/rest/tx:abc")
	})
	triples := g.Triples()
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	if triples[0].Subject.Value != "http://h/rest/tx:abc/x/y" {
		t.Fatalf("subject not rewritten: %s", triples[0].Subject.Value)
	}
	if triples[0].Object.Value != "http://h/rest/tx:abc/x/z" {
		t.Fatalf("object not rewritten: %s", triples[0].Object.Value)
	}
}

func TestDiff(t *testing.T) {
	have := New()
	have.Add(Triple{Subject: URI("s"), Predicate: URI("p"), Object: Literal("old")})
	have.Add(Triple{Subject: URI("s"), Predicate: URI("p"), Object: Literal("keep")})
	want := New()
	want.Add(Triple{Subject: URI("s"), Predicate: URI("p"), Object: Literal("keep")})
	want.Add(Triple{Subject: URI("s"), Predicate: URI("p"), Object: Literal("new")})

	toDelete, toInsert := Diff(have, want)
	if toDelete.Len() != 1 || !toDelete.Contains(Triple{Subject: URI("s"), Predicate: URI("p"), Object: Literal("old")}) {
		t.Fatalf("unexpected delete set: %v", toDelete.Triples())
	}
	if toInsert.Len() != 1 || !toInsert.Contains(Triple{Subject: URI("s"), Predicate: URI("p"), Object: Literal("new")}) {
		t.Fatalf("unexpected insert set: %v", toInsert.Triples())
	}
}
