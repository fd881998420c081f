package dispatcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/umd-lib/plastron-go/internal/plog"
)

// Listener is the dispatcher's single worker: it owns the broker
// connection, the durable inbox/outbox, the inbox filesystem watcher, and
// the bounded worker pool that actually runs commands. It is grounded on
// plastron.stomp.listeners.CommandListener, with the ThreadPoolExecutor
// submission and the MessageProcessor folded into one type since Go's
// WorkerPool already owns the concurrency the original split across two
// collaborators.
type Listener struct {
	Broker *Broker
	Inbox  *MessageBox
	Outbox *MessageBox
	Pool   *WorkerPool
	Deps   Dependencies
	Audit  *AuditPublisher // optional; nil disables the secondary fanout

	watcher *InboxWatcher
	logger  *plog.ContextLogger
}

// NewListener builds a Listener. storeDir holds the inbox/ and outbox/
// subdirectories.
func NewListener(broker *Broker, storeDir string, pool *WorkerPool, deps Dependencies) (*Listener, error) {
	inbox, err := NewMessageBox(filepath.Join(storeDir, "inbox"))
	if err != nil {
		return nil, err
	}
	outbox, err := NewMessageBox(filepath.Join(storeDir, "outbox"))
	if err != nil {
		return nil, err
	}
	return &Listener{
		Broker: broker,
		Inbox:  inbox,
		Outbox: outbox,
		Pool:   pool,
		Deps:   deps,
		logger: plog.New(nil, map[string]interface{}{"component": "dispatcher_listener"}),
	}, nil
}

// Start connects to the broker, replays any outbox left over from a prior
// crash, drains any inbox left over from a prior crash, subscribes to both
// job queues, and starts the inbox watcher. It mirrors the order of
// on_connected in the original: outbox first, then inbox, then subscribe,
// then watch.
func (l *Listener) Start() error {
	if err := l.Broker.Connect(); err != nil {
		return err
	}

	if err := l.Outbox.Each(func(id string, msg Message) error {
		l.logger.Infof("found response message for job %s in outbox", msg.JobID())
		if err := l.Broker.Send(destJobStatus, msg); err != nil {
			return err
		}
		return l.Outbox.Remove(id)
	}); err != nil {
		l.logger.Warnf("outbox replay failed: %v", err)
	}

	if err := l.Inbox.Each(func(id string, msg Message) error {
		cmd, err := ParseCommandMessage(msg)
		if err != nil {
			l.logger.Warnf("dropping malformed inbox message %s: %v", id, err)
			return l.Inbox.Remove(id)
		}
		l.submitAsync(id, cmd)
		return nil
	}); err != nil {
		l.logger.Warnf("inbox drain failed: %v", err)
	}

	jobs, err := l.Broker.Subscribe(destJobs, "plastron", "client-individual")
	if err != nil {
		return err
	}
	syncJobs, err := l.Broker.Subscribe(destSynchronousJobs, "plastron-synchronous", "client-individual")
	if err != nil {
		return err
	}
	go l.consume(jobs, l.handleAsync)
	go l.consume(syncJobs, l.handleSync)

	watcher, err := NewInboxWatcher(l.Inbox.Dir, l.onInboxCreate)
	if err != nil {
		return err
	}
	l.watcher = watcher
	watcher.Start()

	return nil
}

// Stop tears down the inbox watcher, worker pool, and broker connection.
func (l *Listener) Stop() {
	if l.watcher != nil {
		l.watcher.Stop()
	}
	l.Pool.Stop()
	if err := l.Broker.Disconnect(); err != nil {
		l.logger.Warnf("disconnect error: %v", err)
	}
}

func (l *Listener) consume(sub *Subscription, handle func(BrokerMessage)) {
	for bm := range sub.C {
		handle(bm)
	}
}

// handleAsync persists an incoming asynchronous job to the inbox; actual
// processing happens when the inbox watcher observes the new file, not
// here, so that inbox persistence and dispatch go through the same path
// whether the message just arrived or is left over from a crash.
func (l *Listener) handleAsync(bm BrokerMessage) {
	msg := Message{Headers: bm.Headers, Body: bm.Body}
	id := messageID(msg)
	if err := l.Inbox.Add(id, msg); err != nil {
		l.logger.Warnf("failed to persist inbox message %s: %v", id, err)
		return
	}
	_ = l.Broker.Ack(bm)
}

// handleSync processes a synchronous job immediately and replies directly
// to its reply-to destination, bypassing the inbox/outbox entirely (the
// original does the same: synchronous jobs are never persisted).
func (l *Listener) handleSync(bm BrokerMessage) {
	msg := Message{Headers: bm.Headers, Body: bm.Body}
	cmd, err := ParseCommandMessage(msg)
	if err != nil {
		l.logger.Warnf("dropping malformed synchronous message: %v", err)
		_ = l.Broker.Ack(bm)
		return
	}
	l.Pool.Submit(func() {
		response := l.runCommand(cmd)
		if cmd.ReplyTo != "" {
			if err := l.Broker.SendTo(cmd.ReplyTo, response); err != nil {
				l.logger.Warnf("failed to send synchronous reply for job %s: %v", cmd.JobID(), err)
			}
		}
	})
	_ = l.Broker.Ack(bm)
}

// onInboxCreate is the InboxWatcher callback: a new file appeared in the
// inbox, so read and dispatch it.
func (l *Listener) onInboxCreate(path string) {
	msg, err := ReadMessageFile(path)
	if err != nil {
		l.logger.Warnf("failed to read inbox message %s: %v", path, err)
		return
	}
	cmd, err := ParseCommandMessage(msg)
	if err != nil {
		l.logger.Warnf("dropping malformed inbox message %s: %v", path, err)
		return
	}
	l.submitAsync(filepath.Base(path), cmd)
}

func (l *Listener) submitAsync(inboxFilename string, cmd *CommandMessage) {
	l.Pool.Submit(func() {
		l.processAsync(inboxFilename, cmd)
	})
}

// processAsync runs cmd, persists the terminal response to the outbox,
// sends it to the status queue, then removes it from both boxes — in that
// order, so a crash between any two steps still leaves at-least-once
// delivery: the response survives in the outbox until it is known sent.
func (l *Listener) processAsync(inboxFilename string, cmd *CommandMessage) {
	response := l.runCommand(cmd)
	outboxID := response.JobID()

	if err := l.Outbox.Add(outboxID, response); err != nil {
		l.logger.Warnf("failed to persist outbox response for job %s: %v", cmd.JobID(), err)
		return
	}

	if err := l.Broker.Send(destJobStatus, response); err != nil {
		l.logger.Warnf("failed to send response for job %s, leaving in outbox for retry: %v", cmd.JobID(), err)
		return
	}
	_ = l.Inbox.Remove(inboxFilename)
	_ = l.Outbox.Remove(outboxID)
}

// runCommand looks up and executes cmd's command, forwarding every
// progress event to the progress topic with the job id in the headers,
// and returns the terminal Message to send or box.
func (l *Listener) runCommand(cmd *CommandMessage) Message {
	command, ok := GetCommand(cmd.Command)
	if !ok {
		return cmd.Response("Error", []byte(fmt.Sprintf("unknown command %q", cmd.Command)))
	}

	progressCh := make(chan []byte)
	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for body := range progressCh {
			msg := Message{Headers: map[string]string{headerJobID: cmd.JobID()}, Body: body}
			if err := l.Broker.Send(destJobProgress, msg); err != nil {
				l.logger.Warnf("failed to send progress for job %s: %v", cmd.JobID(), err)
			}
		}
	}()

	state, body, err := command.Execute(l.Deps, cmd, progressCh)
	close(progressCh)
	<-forwardDone

	if err != nil {
		l.publishAudit(cmd, "Error")
		l.logger.Warnf("job %s failed: %v", cmd.JobID(), err)
		return cmd.Response("Error", []byte(err.Error()))
	}
	l.publishAudit(cmd, state)
	l.logger.Infof("job %s complete (%s)", cmd.JobID(), state)
	return cmd.Response(state, body)
}

func (l *Listener) publishAudit(cmd *CommandMessage, state string) {
	if l.Audit == nil {
		return
	}
	event := AuditEvent{JobID: cmd.JobID(), Command: cmd.Command, State: state, Timestamp: time.Now().UTC()}
	if err := l.Audit.Publish(event); err != nil {
		l.logger.Warnf("audit fanout failed for job %s: %v", cmd.JobID(), err)
	}
}

// messageID returns the broker's own message-id header if present,
// falling back to the job id; the original keys its inbox by the STOMP
// message id specifically, so redelivery after a crash (which mints a new
// message id) does not collide with an already-processed file.
func messageID(msg Message) string {
	if id, ok := msg.Headers["message-id"]; ok && id != "" {
		return id
	}
	return msg.JobID()
}
