package dispatcher

import (
	"fmt"
	"sync"
)

// FakeBroker is an in-memory STOMP broker substitute: named topics, each a
// fan-out channel to every currently subscribed connection. It grounds
// dispatcher tests the way queue/amqp_mock.go's MockAMQPChannel grounds
// queue tests, without requiring a real broker process.
type FakeBroker struct {
	mu      sync.Mutex
	topics  map[string][]chan BrokerMessage
	Sent    []FakeSend
	Acked   []string
	DialErr error
}

// FakeSend records one message handed to Send, for test assertions.
type FakeSend struct {
	Destination string
	Headers     map[string]string
	Body        []byte
}

// NewFakeBroker returns an empty FakeBroker.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{topics: make(map[string][]chan BrokerMessage)}
}

// Dial implements BrokerDialer: every dial shares this same FakeBroker.
func (f *FakeBroker) Dial(addr, clientID string) (BrokerConnection, error) {
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	return &fakeBrokerConnection{broker: f}, nil
}

// Publish delivers a message to every subscriber of destination, as if an
// external producer had sent it — the test-side equivalent of a message
// arriving from elsewhere on the broker.
func (f *FakeBroker) Publish(destination string, headers map[string]string, body []byte) {
	f.mu.Lock()
	subs := append([]chan BrokerMessage(nil), f.topics[destination]...)
	f.mu.Unlock()
	for _, c := range subs {
		c <- BrokerMessage{Destination: destination, Headers: headers, Body: body}
	}
}

type fakeBrokerConnection struct {
	broker *FakeBroker
}

func (c *fakeBrokerConnection) Subscribe(destination, id, ack string) (*Subscription, error) {
	ch := make(chan BrokerMessage, 16)
	c.broker.mu.Lock()
	c.broker.topics[destination] = append(c.broker.topics[destination], ch)
	c.broker.mu.Unlock()
	return &Subscription{ID: id, C: ch}, nil
}

func (c *fakeBrokerConnection) Send(destination, contentType string, headers map[string]string, body []byte) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	c.broker.Sent = append(c.broker.Sent, FakeSend{Destination: destination, Headers: h, Body: body})
	return nil
}

func (c *fakeBrokerConnection) Ack(msg BrokerMessage) error {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.Acked = append(c.broker.Acked, fmt.Sprintf("%s:%s", msg.Destination, msg.Headers[headerJobID]))
	return nil
}

func (c *fakeBrokerConnection) Disconnect() error { return nil }
