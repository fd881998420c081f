package spreadsheet

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseColumnHeaderWithLanguage(t *testing.T) {
	h := ParseColumnHeader("Title [Japanese]")
	if h.Label != "Title" || h.Language != "Japanese" {
		t.Fatalf("unexpected parse: %+v", h)
	}
}

func TestParseColumnHeaderUndecorated(t *testing.T) {
	h := ParseColumnHeader("Title")
	if h.Label != "Title" || h.Language != "" {
		t.Fatalf("unexpected parse: %+v", h)
	}
}

func TestBuildFieldsResolvesDecorations(t *testing.T) {
	hm := HeaderMap{"title": "Title", "date": "Date Created"}
	fields, err := BuildFields([]string{"Title", "Title [ja]", "Date Created {EDTF}", "URI"}, hm)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 resolved fields (URI is a system header), got %d", len(fields))
	}
	if fields[1].Lang != "ja" {
		t.Fatalf("expected lang ja, got %q", fields[1].Lang)
	}
	if fields[2].Datatype != "http://id.loc.gov/datatypes/edtf" {
		t.Fatalf("expected EDTF datatype URI, got %q", fields[2].Datatype)
	}
}

func TestBuildFieldsRejectsUnknownHeader(t *testing.T) {
	hm := HeaderMap{"title": "Title"}
	if _, err := BuildFields([]string{"Bogus"}, hm); err == nil {
		t.Fatal("expected an error for an unrecognized header")
	}
}

func TestBuildFileGroupsUnlabelledDefaultsToPageN(t *testing.T) {
	groups, err := BuildFileGroups("foo.jpg;bar.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if groups["foo"].Label != "Page 1" || groups["bar"].Label != "Page 2" {
		t.Fatalf("unexpected labels: foo=%q bar=%q", groups["foo"].Label, groups["bar"].Label)
	}
}

func TestBuildFileGroupsGroupsByRootname(t *testing.T) {
	groups, err := BuildFileGroups("foo.jpg;foo.png")
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups["foo"].Files) != 2 {
		t.Fatalf("expected 2 files in group, got %d", len(groups["foo"].Files))
	}
}

func TestBuildFileGroupsWithLabels(t *testing.T) {
	groups, err := BuildFileGroups("Front:foo.jpg;Back:bar.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if groups["foo"].Label != "Front" || groups["bar"].Label != "Back" {
		t.Fatalf("unexpected labels: %+v", groups)
	}
}

func TestBuildFileGroupsMixedLabelsIsError(t *testing.T) {
	if _, err := BuildFileGroups("Front:foo.jpg;bar.jpg"); err == nil {
		t.Fatal("expected an error for mixed labelled/unlabelled file groups")
	}
}

func TestBuildFileGroupsConflictingLabelsIsError(t *testing.T) {
	if _, err := BuildFileGroups("Front:foo.jpg;Back:foo.png"); err == nil {
		t.Fatal("expected an error for conflicting labels on the same rootname")
	}
}

func TestParseIndex(t *testing.T) {
	index, err := ParseIndex("subject[0]=#abc;subject[1]=#def")
	if err != nil {
		t.Fatal(err)
	}
	if index["subject"][0] != "abc" || index["subject"][1] != "def" {
		t.Fatalf("unexpected index: %+v", index)
	}
}

func TestParseItemFilesWithUsageTag(t *testing.T) {
	specs := ParseItemFiles("a.jpg<source>;b.jpg")
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "a.jpg" || specs[0].Usage != "source" {
		t.Fatalf("unexpected spec: %+v", specs[0])
	}
	if specs[1].Usage != "" {
		t.Fatalf("expected no usage tag, got %q", specs[1].Usage)
	}
}

func writeTestCSV(t *testing.T, dir string, content string) string {
	t.Helper()
	path := filepath.Join(dir, "metadata.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSpreadsheetStreamsRows(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "Title,URI\nFoo,\nBar,\n")

	hm := HeaderMap{"title": "Title"}
	sheet, err := Open(path, hm, "Title")
	if err != nil {
		t.Fatal(err)
	}
	defer sheet.Close()

	rows, errPtr := sheet.Rows(RowsOptions{})
	var got []string
	for r := range rows {
		if r.Invalid != nil {
			t.Fatalf("unexpected invalid row: %+v", r.Invalid)
		}
		got = append(got, r.Row.Identifier())
	}
	if *errPtr != nil {
		t.Fatal(*errPtr)
	}
	if len(got) != 2 || got[0] != "Foo" || got[1] != "Bar" {
		t.Fatalf("unexpected rows: %v", got)
	}
}

func TestSpreadsheetReportsWrongColumnCountAsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "Title,URI\nFoo,bar,baz\n")

	hm := HeaderMap{"title": "Title"}
	sheet, err := Open(path, hm, "Title")
	if err != nil {
		t.Fatal(err)
	}
	defer sheet.Close()

	rows, _ := sheet.Rows(RowsOptions{})
	var invalidCount int
	for r := range rows {
		if r.Invalid != nil {
			invalidCount++
		}
	}
	if invalidCount != 1 {
		t.Fatalf("expected 1 invalid row, got %d", invalidCount)
	}
}

type fakeCompleted struct{ keys map[string]bool }

func (f fakeCompleted) Len() int               { return len(f.keys) }
func (f fakeCompleted) Contains(k string) bool { return f.keys[k] }

func TestSpreadsheetSkipsCompletedRows(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "Title,URI\nFoo,\nBar,\n")

	hm := HeaderMap{"title": "Title"}
	sheet, err := Open(path, hm, "Title")
	if err != nil {
		t.Fatal(err)
	}
	defer sheet.Close()

	completed := fakeCompleted{keys: map[string]bool{"Foo": true}}
	rows, _ := sheet.Rows(RowsOptions{Completed: completed})
	var got []string
	for r := range rows {
		got = append(got, r.Row.Identifier())
	}
	if len(got) != 1 || got[0] != "Bar" {
		t.Fatalf("expected only Bar to remain, got %v", got)
	}
}
