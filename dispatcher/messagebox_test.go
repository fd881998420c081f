package dispatcher

import "testing"

func TestMessageBoxAddListRemove(t *testing.T) {
	box, err := NewMessageBox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	msg := Message{Headers: map[string]string{headerJobID: "job-1"}, Body: []byte("hello")}
	if err := box.Add("job-1", msg); err != nil {
		t.Fatal(err)
	}

	ids, err := box.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "job-1" {
		t.Fatalf("expected [job-1], got %v", ids)
	}

	var seen []string
	err = box.Each(func(filename string, m Message) error {
		seen = append(seen, filename)
		if m.JobID() != "job-1" {
			t.Fatalf("expected job-1, got %q", m.JobID())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected one message visited, got %d", len(seen))
	}

	if err := box.Remove("job-1"); err != nil {
		t.Fatal(err)
	}
	ids, err = box.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected the box to be empty after removal, got %v", ids)
	}
}

func TestMessageBoxRemoveIsIdempotent(t *testing.T) {
	box, err := NewMessageBox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := box.Remove("never-added"); err != nil {
		t.Fatalf("expected removing a missing id to be a no-op, got %v", err)
	}
}

func TestMessageBoxSanitizesSlashesInID(t *testing.T) {
	box, err := NewMessageBox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := box.Add("jobs/sub/1", Message{Headers: map[string]string{headerJobID: "jobs/sub/1"}}); err != nil {
		t.Fatal(err)
	}
	ids, err := box.IDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "jobs-sub-1" {
		t.Fatalf("expected the id to be flattened to a single path segment, got %v", ids)
	}
}
