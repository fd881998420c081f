package dispatcher

import (
	"fmt"
	"os"

	"github.com/umd-lib/plastron-go/internal/plog"
	"github.com/umd-lib/plastron-go/version"
)

// Destination names in the configured destinations map; config keys are
// upper-cased the way the original's Broker.destination() does.
const (
	destJobs            = "JOBS"
	destSynchronousJobs = "SYNCHRONOUS_JOBS"
	destJobStatus       = "JOB_STATUS"
	destJobProgress     = "JOB_PROGRESS"
)

// Broker owns a single STOMP connection and the named destinations the
// dispatcher sends to and subscribes from, grounded on
// plastron.stomp.broker.Broker/Destination.
type Broker struct {
	Dialer       BrokerDialer
	Addr         string
	Destinations map[string]string // upper-cased name -> destination path

	clientID string
	conn     BrokerConnection
	logger   *plog.ContextLogger
}

// NewBroker builds a Broker. clientID is included in the STOMP CONNECT
// frame so server logs can identify this dispatcher instance.
func NewBroker(dialer BrokerDialer, addr string, destinations map[string]string) *Broker {
	upper := make(map[string]string, len(destinations))
	for k, v := range destinations {
		upper[upperASCII(k)] = v
	}
	return &Broker{
		Dialer:       dialer,
		Addr:         addr,
		Destinations: upper,
		clientID:     fmt.Sprintf("plastrond/%s-%d", dispatcherVersion(), os.Getpid()),
		logger:       plog.New(nil, map[string]interface{}{"component": "dispatcher"}),
	}
}

// dispatcherVersion reports this binary's own module version, falling back
// to "dev" when build info isn't embedded (e.g. `go run`).
func dispatcherVersion() string {
	v := version.GetBuildInfo().MainVersion
	if v == "" || v == "(devel)" {
		return "dev"
	}
	return v
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// Destination resolves a configured destination name to its STOMP path.
func (b *Broker) Destination(name string) (string, bool) {
	d, ok := b.Destinations[upperASCII(name)]
	return d, ok
}

// Connect dials the broker, logging the attempt the way the original's
// connect() does.
func (b *Broker) Connect() error {
	b.logger.Infof("attempting to connect to STOMP message broker %s (client-id %s)", b.Addr, b.clientID)
	conn, err := b.Dialer.Dial(b.Addr, b.clientID)
	if err != nil {
		b.logger.Warnf("STOMP connection failed: %v", err)
		return err
	}
	b.conn = conn
	b.logger.Infof("connected to STOMP message broker %s", b.Addr)
	return nil
}

// Disconnect closes the broker connection.
func (b *Broker) Disconnect() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Disconnect()
}

// Subscribe subscribes to the named destination.
func (b *Broker) Subscribe(name, id, ack string) (*Subscription, error) {
	dest, ok := b.Destination(name)
	if !ok {
		return nil, fmt.Errorf("no destination configured for %q", name)
	}
	return b.conn.Subscribe(dest, id, ack)
}

// Send sends msg to the named destination.
func (b *Broker) Send(name string, msg Message) error {
	dest, ok := b.Destination(name)
	if !ok {
		return fmt.Errorf("no destination configured for %q", name)
	}
	return b.conn.Send(dest, "application/json", msg.Headers, msg.Body)
}

// SendTo sends msg directly to an arbitrary destination path, used for the
// per-message reply-to destination of synchronous jobs.
func (b *Broker) SendTo(destPath string, msg Message) error {
	return b.conn.Send(destPath, "application/json", msg.Headers, msg.Body)
}

// Ack acknowledges a received message.
func (b *Broker) Ack(msg BrokerMessage) error {
	return b.conn.Ack(msg)
}
