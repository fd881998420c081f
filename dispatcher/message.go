// Package dispatcher implements the message-driven job dispatcher (C11): a
// single STOMP listener that persists incoming commands to a durable inbox,
// fans them out to a bounded worker pool, dispatches each one by command
// name to an import/update/publish engine, and streams progress back to the
// broker before recording a terminal response in a durable outbox.
package dispatcher

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// argHeaderPrefix is the fixed marker that distinguishes a command's
// engine-bound arguments from its other STOMP headers.
const argHeaderPrefix = "PlastronArg-"

const (
	headerJobID   = "PlastronJobId"
	headerCommand = "PlastronCommand"
	headerError   = "PlastronJobError"
	headerReplyTo = "reply-to"
)

// Message is a STOMP frame's headers and body, durable-boxed as a flat text
// file: one "key: value" line per header, a blank line, then the raw body.
type Message struct {
	Headers map[string]string
	Body    []byte
}

// NewMessage builds a Message carrying jobID and, optionally, an error.
func NewMessage(jobID string, err error) Message {
	headers := map[string]string{headerJobID: jobID}
	if err != nil {
		headers[headerError] = err.Error()
	}
	return Message{Headers: headers}
}

func (m Message) String() string {
	var b strings.Builder
	for k, v := range m.Headers {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	b.WriteByte('\n')
	b.Write(m.Body)
	return b.String()
}

// ReadMessage parses a Message in the format Message.String writes.
func ReadMessage(r []byte) (Message, error) {
	scanner := bufio.NewScanner(bytes.NewReader(r))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	headers := make(map[string]string)
	inBody := false
	var body bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		if inBody {
			body.WriteString(line)
			body.WriteByte('\n')
			continue
		}
		if strings.TrimSpace(line) == "" {
			inBody = true
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Message{}, fmt.Errorf("malformed message header line: %q", line)
		}
		headers[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return Message{}, err
	}
	bodyBytes := bytes.TrimSuffix(body.Bytes(), []byte("\n"))
	return Message{Headers: headers, Body: bodyBytes}, nil
}

// ReadMessageFile reads and parses a Message from filename.
func ReadMessageFile(filename string) (Message, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Message{}, err
	}
	return ReadMessage(data)
}

// JobID returns the PlastronJobId header, or "" if absent.
func (m Message) JobID() string { return m.Headers[headerJobID] }

// CommandMessage is an incoming Message known to carry a command name and
// PlastronArg-* headers addressed to that command's engine.
type CommandMessage struct {
	Message
	Command string
	Args    map[string]string
	ReplyTo string // non-empty only for synchronous (request/reply) jobs
}

// ParseCommandMessage extracts a command name and argument map from msg,
// mirroring the original's PlastronCommandMessage header-prefix convention.
func ParseCommandMessage(msg Message) (*CommandMessage, error) {
	if msg.JobID() == "" {
		return nil, fmt.Errorf("message is missing the %s header", headerJobID)
	}
	command, ok := msg.Headers[headerCommand]
	if !ok {
		return nil, fmt.Errorf("message is missing the %s header", headerCommand)
	}
	args := make(map[string]string)
	for k, v := range msg.Headers {
		if strings.HasPrefix(k, argHeaderPrefix) {
			args[strings.TrimPrefix(k, argHeaderPrefix)] = v
		}
	}
	return &CommandMessage{Message: msg, Command: command, Args: args, ReplyTo: msg.Headers[headerReplyTo]}, nil
}

// Response builds the terminal Message sent back for this command: state
// and body are the engine's final result, rendered by the caller.
func (c *CommandMessage) Response(state string, body []byte) Message {
	return Message{
		Headers: map[string]string{
			headerJobID:        c.JobID(),
			"PlastronJobState": state,
		},
		Body: body,
	}
}
