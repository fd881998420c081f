package dispatcher

import "testing"

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		Headers: map[string]string{headerJobID: "job-1", headerCommand: "publish"},
		Body:    []byte("line one\nline two"),
	}
	parsed, err := ReadMessage([]byte(msg.String()))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.JobID() != "job-1" {
		t.Fatalf("expected job id job-1, got %q", parsed.JobID())
	}
	if parsed.Headers[headerCommand] != "publish" {
		t.Fatalf("expected command header to survive the round trip, got %+v", parsed.Headers)
	}
	if string(parsed.Body) != string(msg.Body) {
		t.Fatalf("expected body %q, got %q", msg.Body, parsed.Body)
	}
}

func TestParseCommandMessageExtractsArgs(t *testing.T) {
	msg := Message{Headers: map[string]string{
		headerJobID:              "job-2",
		headerCommand:            "import",
		argHeaderPrefix + "model": "Letter",
		argHeaderPrefix + "limit": "10",
		"content-type":            "text/csv",
	}}
	cmd, err := ParseCommandMessage(msg)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Command != "import" {
		t.Fatalf("expected command import, got %q", cmd.Command)
	}
	if cmd.Args["model"] != "Letter" || cmd.Args["limit"] != "10" {
		t.Fatalf("expected model/limit args, got %+v", cmd.Args)
	}
	if _, ok := cmd.Args["content-type"]; ok {
		t.Fatalf("expected non-PlastronArg headers to be excluded from Args")
	}
}

func TestParseCommandMessageRequiresJobID(t *testing.T) {
	if _, err := ParseCommandMessage(Message{Headers: map[string]string{headerCommand: "import"}}); err == nil {
		t.Fatal("expected an error when PlastronJobId is missing")
	}
}

func TestParseCommandMessageRequiresCommand(t *testing.T) {
	if _, err := ParseCommandMessage(Message{Headers: map[string]string{headerJobID: "job-3"}}); err == nil {
		t.Fatal("expected an error when PlastronCommand is missing")
	}
}

func TestCommandMessageResponseCarriesJobID(t *testing.T) {
	cmd := &CommandMessage{Message: Message{Headers: map[string]string{headerJobID: "job-4"}}, Command: "publish"}
	resp := cmd.Response("publish_complete", []byte(`{}`))
	if resp.JobID() != "job-4" {
		t.Fatalf("expected job id to carry over into the response, got %q", resp.JobID())
	}
	if resp.Headers["PlastronJobState"] != "publish_complete" {
		t.Fatalf("expected state header, got %+v", resp.Headers)
	}
}
