package dispatcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"

	"github.com/umd-lib/plastron-go/queue"
)

// AuditEvent is one terminal job result, fanned out to an independent
// audit/notification trail alongside the primary STOMP status delivery.
type AuditEvent struct {
	JobID     string    `json:"job_id"`
	Command   string    `json:"command"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditPublisher is an optional secondary AMQP publisher for terminal job
// events, independent of the primary STOMP broker — grounded on
// queue.RabbitMQService's connect/declare/publish lifecycle, reusing its
// AMQPConnection/AMQPChannel/AMQPDialer interfaces directly rather than
// re-deriving an equivalent abstraction.
type AuditPublisher struct {
	connection queue.AMQPConnection
	channel    queue.AMQPChannel
	queueName  string
}

// NewAuditPublisher dials url (via dialer, letting tests substitute
// queue.MockAMQPDialer), declares a durable queue named queueName, and
// returns a publisher bound to it.
func NewAuditPublisher(dialer queue.AMQPDialer, url, queueName string) (*AuditPublisher, error) {
	conn, err := dialer.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open audit channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare audit queue: %w", err)
	}
	return &AuditPublisher{connection: conn, channel: ch, queueName: queueName}, nil
}

// Publish fans out event as a JSON message.
func (p *AuditPublisher) Publish(event AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	return p.channel.Publish("", p.queueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Close closes the channel and connection.
func (p *AuditPublisher) Close() error {
	chErr := p.channel.Close()
	connErr := p.connection.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}
