package itemlog

import (
	"path/filepath"
	"testing"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	filename := filepath.Join(dir, "log.csv")
	log, err := Open(filename, []string{"id", "title"}, "id")
	if err != nil {
		t.Fatal(err)
	}
	return log, filename
}

func TestOpenRejectsUnknownKeyfield(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "log.csv"), []string{"id", "title"}, "nope")
	if err == nil {
		t.Fatal("expected an error for an unknown keyfield")
	}
}

func TestNewLogDoesNotExistUntilCreated(t *testing.T) {
	log, _ := newTestLog(t)
	if log.Exists() {
		t.Fatal("expected log to not exist yet")
	}
	if err := log.Create(); err != nil {
		t.Fatal(err)
	}
	if !log.Exists() {
		t.Fatal("expected log to exist after Create")
	}
	if log.Len() != 0 {
		t.Fatalf("expected empty log, got %d rows", log.Len())
	}
}

func TestAppendAndContains(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.Append(Row{"id": "foo", "title": "The Adventures of Foo"}); err != nil {
		t.Fatal(err)
	}
	if log.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", log.Len())
	}
	if !log.Contains("foo") {
		t.Fatal("expected log to contain key 'foo'")
	}
	if log.Contains("bar") {
		t.Fatal("did not expect log to contain key 'bar'")
	}

	if err := log.Append(Row{"id": "bar", "title": "The Bar Strikes Back"}); err != nil {
		t.Fatal(err)
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", log.Len())
	}

	row, err := log.At(0)
	if err != nil {
		t.Fatal(err)
	}
	if row["id"] != "foo" || row["title"] != "The Adventures of Foo" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestAtOutOfRange(t *testing.T) {
	log, _ := newTestLog(t)
	if err := log.Append(Row{"id": "foo", "title": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := log.At(5); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestReopenExistingLogIndexesExistingRows(t *testing.T) {
	log, filename := newTestLog(t)
	if err := log.Append(Row{"id": "foo", "title": "x"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(filename, []string{"id", "title"}, "id")
	if err != nil {
		t.Fatal(err)
	}
	if !reopened.Contains("foo") {
		t.Fatal("expected reopened log to already contain 'foo'")
	}
	if reopened.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", reopened.Len())
	}
}

func TestNullLogDiscardsEverything(t *testing.T) {
	var log NullLog
	if log.Len() != 0 {
		t.Fatal("expected NullLog to always report zero length")
	}
	if err := log.Append(Row{"foo": "bar"}); err != nil {
		t.Fatal(err)
	}
	if log.Len() != 0 {
		t.Fatal("expected NullLog to discard appended rows")
	}
	if log.Contains("foo") {
		t.Fatal("expected NullLog to never contain anything")
	}
}
