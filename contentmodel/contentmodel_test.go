package contentmodel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/spreadsheet"
)

func TestRegistryGetAndNames(t *testing.T) {
	registry = map[string]Model{}
	m := NewLetterModel(NewVocabularyCache(nil))
	Register(m)

	got, err := Get("Letter")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name() != "Letter" {
		t.Fatalf("unexpected model: %+v", got)
	}

	if _, err := Get("Bogus"); err == nil {
		t.Fatal("expected an error for an unregistered model")
	}

	names := Names()
	if len(names) != 1 || names[0] != "Letter" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRequiredRuleFailsOnAbsence(t *testing.T) {
	rule := Required()
	if _, ok := rule(nil); ok {
		t.Fatal("expected Required to fail with no values")
	}
	if _, ok := rule([]graph.Term{graph.Literal("x")}); !ok {
		t.Fatal("expected Required to pass with one value")
	}
}

func TestExactlyRule(t *testing.T) {
	rule := Exactly(1)
	if _, ok := rule([]graph.Term{graph.Literal("a"), graph.Literal("b")}); ok {
		t.Fatal("expected Exactly(1) to fail with two values")
	}
	if _, ok := rule([]graph.Term{graph.Literal("a")}); !ok {
		t.Fatal("expected Exactly(1) to pass with one value")
	}
}

func TestEDTFFormattedRule(t *testing.T) {
	rule := EDTFFormatted()
	valid := []string{"", "1999", "1999-01", "1999-01-15", "1999/2000", "19XX"}
	for _, v := range valid {
		if _, ok := rule([]graph.Term{graph.Literal(v)}); !ok {
			t.Fatalf("expected %q to be valid EDTF", v)
		}
	}
	if _, ok := rule([]graph.Term{graph.Literal("not-a-date")}); ok {
		t.Fatal("expected an invalid EDTF string to fail")
	}
}

func TestValidLanguageCodeRule(t *testing.T) {
	rule := ValidLanguageCode()
	if _, ok := rule([]graph.Term{graph.Literal("en")}); !ok {
		t.Fatal("expected en to be a valid language code")
	}
	if _, ok := rule([]graph.Term{graph.Literal("xx-bogus-tag-!!!")}); ok {
		t.Fatal("expected a malformed tag to fail")
	}
}

func TestValidHandleFormatRule(t *testing.T) {
	rule := ValidHandleFormat()
	if _, ok := rule([]graph.Term{graph.Literal("1903.1/12345")}); !ok {
		t.Fatal("expected a well-formed handle to pass")
	}
	if _, ok := rule([]graph.Term{graph.Literal("not a handle")}); ok {
		t.Fatal("expected a malformed handle to fail")
	}
}

func TestPlainTextRule(t *testing.T) {
	rule := PlainText()
	if _, ok := rule([]graph.Term{graph.Literal("A letter from John Smith to his sister.")}); !ok {
		t.Fatal("expected plain text to pass")
	}
	if _, ok := rule([]graph.Term{graph.Literal("A letter <i>mentioning</i> the war.")}); ok {
		t.Fatal("expected embedded markup to fail")
	}
}

func TestValidateShortCircuitsPerProperty(t *testing.T) {
	g := graph.New()
	subject := graph.URI("http://example.com/item/1")
	properties := map[string]string{"title": "http://purl.org/dc/terms/title"}
	report := Validate(g, subject, properties, []PropertyRules{
		{Property: "title", Rules: []Rule{Required(), NonEmpty()}},
	})
	if report.Valid() {
		t.Fatal("expected a missing title to be reported invalid")
	}
	if _, ok := report["title"]; !ok {
		t.Fatalf("expected a title failure, got %+v", report)
	}
}

func TestValidatePassesWhenPropertyPresent(t *testing.T) {
	g := graph.New()
	subject := graph.URI("http://example.com/item/1")
	titlePredicate := graph.URI("http://purl.org/dc/terms/title")
	g.Add(graph.Triple{Subject: subject, Predicate: titlePredicate, Object: graph.Literal("A Letter")})

	properties := map[string]string{"title": titlePredicate.Value}
	report := Validate(g, subject, properties, []PropertyRules{
		{Property: "title", Rules: []Rule{Required(), NonEmpty()}},
	})
	if !report.Valid() {
		t.Fatalf("expected validation to pass, got %+v", report)
	}
}

func TestParseAndSerializeRoundTrip(t *testing.T) {
	model := NewLetterModel(NewVocabularyCache(nil))
	subject := graph.URI("http://example.com/item/1")
	row := &spreadsheet.Row{Data: map[string]string{"Title": "A Letter Home", "Rights": "Public Domain"}}
	fields := []spreadsheet.Field{
		{Attr: "title", Header: "Title"},
		{Attr: "rights", Header: "Rights"},
	}

	g := Parse(model, subject, row, fields)
	if g.Len() == 0 {
		t.Fatal("expected Parse to produce triples")
	}

	data := Serialize(model, g, subject, fields)
	if data["Title"] != "A Letter Home" || data["Rights"] != "Public Domain" {
		t.Fatalf("unexpected round-tripped data: %+v", data)
	}
}

func TestParseStampsRDFTypes(t *testing.T) {
	model := NewLetterModel(NewVocabularyCache(nil))
	subject := graph.URI("http://example.com/item/1")
	row := &spreadsheet.Row{Data: map[string]string{}}

	g := Parse(model, subject, row, nil)
	found := 0
	for _, t := range g.Triples() {
		if t.Predicate.Value == rdfTypePredicate {
			found++
		}
	}
	if found != len(model.RDFTypes()) {
		t.Fatalf("expected %d rdf:type triples, got %d", len(model.RDFTypes()), found)
	}
}

func TestParseBuildsEmbeddedSubObjectsFromIndex(t *testing.T) {
	model := NewLetterModel(NewVocabularyCache(nil))
	subject := graph.URI("http://example.com/item/1")
	row := &spreadsheet.Row{Data: map[string]string{
		"Subject": "Philosophy;Linguistics",
		"INDEX":   "subject[0]=#s0;subject[1]=#s1",
	}}
	fields := []spreadsheet.Field{
		{Attr: "subject.label", Header: "Subject"},
	}

	g := Parse(model, subject, row, fields)

	s0 := graph.URI(subject.Value + "#s0")
	s1 := graph.URI(subject.Value + "#s1")
	if !g.Contains(graph.Triple{Subject: subject, Predicate: graph.URI("http://purl.org/dc/terms/subject"), Object: s0}) {
		t.Fatalf("expected subject to link to #s0, got %+v", g.Triples())
	}
	if !g.Contains(graph.Triple{Subject: subject, Predicate: graph.URI("http://purl.org/dc/terms/subject"), Object: s1}) {
		t.Fatalf("expected subject to link to #s1, got %+v", g.Triples())
	}
	if !g.Contains(graph.Triple{Subject: s0, Predicate: graph.URI("http://www.w3.org/2000/01/rdf-schema#label"), Object: graph.Literal("Philosophy")}) {
		t.Fatalf("expected #s0 to carry label Philosophy, got %+v", g.Triples())
	}
	if !g.Contains(graph.Triple{Subject: s1, Predicate: graph.URI("http://www.w3.org/2000/01/rdf-schema#label"), Object: graph.Literal("Linguistics")}) {
		t.Fatalf("expected #s1 to carry label Linguistics, got %+v", g.Triples())
	}

	data := Serialize(model, g, subject, fields)
	if data["Subject"] != "Philosophy;Linguistics" {
		t.Fatalf("unexpected serialized Subject: %q", data["Subject"])
	}
	if data["INDEX"] != "subject[0]=#s0;subject[1]=#s1" {
		t.Fatalf("expected fragment ids to survive the round trip unchanged, got %q", data["INDEX"])
	}
}

func TestParseMintsFreshFragmentsWhenIndexAbsent(t *testing.T) {
	model := NewLetterModel(NewVocabularyCache(nil))
	subject := graph.URI("http://example.com/item/1")
	row := &spreadsheet.Row{Data: map[string]string{"Subject": "Philosophy"}}
	fields := []spreadsheet.Field{
		{Attr: "subject.label", Header: "Subject"},
	}

	g := Parse(model, subject, row, fields)

	var embedded graph.Term
	found := 0
	for _, tr := range g.Triples() {
		if tr.Subject.Equal(subject) && tr.Predicate.Value == "http://purl.org/dc/terms/subject" {
			embedded = tr.Object
			found++
		}
	}
	if found != 1 {
		t.Fatalf("expected exactly one embedded subject, got %d", found)
	}
	if !strings.HasPrefix(embedded.Value, subject.Value+"#") {
		t.Fatalf("expected a freshly minted hash-URI fragment, got %q", embedded.Value)
	}
}

func TestVocabularyCacheFetchesAndCaches(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<http://vocab.example.com/term1> <http://www.w3.org/2000/01/rdf-schema#label> "Term One" .`))
	}))
	defer srv.Close()

	cache := NewVocabularyCache(srv.Client())
	subjects, err := cache.Subjects(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !subjects["http://vocab.example.com/term1"] {
		t.Fatalf("expected term1 to be a cached subject, got %+v", subjects)
	}

	if _, err := cache.Subjects(srv.URL); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Fatalf("expected exactly one remote fetch, got %d", hits)
	}
}

func TestFromVocabularyRefreshesOnMiss(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.Write([]byte(`<http://vocab.example.com/old> <http://www.w3.org/2000/01/rdf-schema#label> "Old" .`))
			return
		}
		w.Write([]byte(`<http://vocab.example.com/old> <http://www.w3.org/2000/01/rdf-schema#label> "Old" .
<http://vocab.example.com/new> <http://www.w3.org/2000/01/rdf-schema#label> "New" .`))
	}))
	defer srv.Close()

	cache := NewVocabularyCache(srv.Client())
	if _, err := cache.Subjects(srv.URL); err != nil {
		t.Fatal(err)
	}

	rule := FromVocabulary(cache, srv.URL)
	if _, ok := rule([]graph.Term{graph.URI("http://vocab.example.com/new")}); !ok {
		t.Fatal("expected the term added after the first fetch to pass after a refresh")
	}
	if hits != 2 {
		t.Fatalf("expected exactly one refresh fetch (2 total), got %d", hits)
	}

	if _, ok := rule([]graph.Term{graph.URI("http://vocab.example.com/nonexistent")}); ok {
		t.Fatal("expected a truly absent term to still fail after the refresh attempt")
	}
}
