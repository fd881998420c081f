package dispatcher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umd-lib/plastron-go/queue"
)

func TestNewAuditPublisherDeclaresQueueAndPublishes(t *testing.T) {
	dialer, channel, _ := queue.SetupMockDialerForTest()

	publisher, err := NewAuditPublisher(dialer, "amqp://guest@localhost", "plastron.audit")
	require.NoError(t, err)
	assert.True(t, dialer.DialCalled, "expected NewAuditPublisher to dial the broker")
	assert.True(t, channel.QueueDeclareCalled)
	assert.Equal(t, "plastron.audit", channel.LastQueueName)

	event := AuditEvent{JobID: "import-001", Command: "import", State: "import_complete", Timestamp: time.Now()}
	require.NoError(t, publisher.Publish(event))
	require.Len(t, channel.PublishedMessages, 1)

	var got AuditEvent
	require.NoError(t, json.Unmarshal(channel.PublishedMessages[0].Body, &got))
	assert.Equal(t, event.JobID, got.JobID)
	assert.Equal(t, event.State, got.State)

	assert.NoError(t, publisher.Close())
}

func TestNewAuditPublisherFailsOnDialError(t *testing.T) {
	dialer := queue.NewMockAMQPDialerWithError(errors.New("connection refused"))
	_, err := NewAuditPublisher(dialer, "amqp://guest@localhost", "plastron.audit")
	assert.Error(t, err, "expected dial failure to propagate")
}

func TestNewAuditPublisherFailsOnQueueDeclareError(t *testing.T) {
	dialer, _ := queue.SetupMockDialerWithQueueError()
	_, err := NewAuditPublisher(dialer, "amqp://guest@localhost", "plastron.audit")
	assert.Error(t, err, "expected queue-declare failure to propagate")
}
