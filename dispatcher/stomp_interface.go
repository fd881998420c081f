package dispatcher

import (
	"github.com/go-stomp/stomp"
	"github.com/go-stomp/stomp/frame"
)

// BrokerMessage is a single received STOMP frame, reduced to what the
// dispatcher needs: its destination, headers, body, and an opaque ack
// token passed back to Ack.
type BrokerMessage struct {
	Destination string
	Headers     map[string]string
	Body        []byte
	ack         interface{}
}

// Subscription is a live subscription's inbound channel and id.
type Subscription struct {
	ID string
	C  <-chan BrokerMessage
}

// BrokerConnection is the subset of a STOMP connection the dispatcher
// uses, abstracted so tests can substitute an in-memory fake broker in
// place of github.com/go-stomp/stomp (mirroring queue.AMQPConnection's
// interface-mock split for the same reason).
type BrokerConnection interface {
	Subscribe(destination, id, ack string) (*Subscription, error)
	Send(destination, contentType string, headers map[string]string, body []byte) error
	Ack(msg BrokerMessage) error
	Disconnect() error
}

// BrokerDialer dials a BrokerConnection.
type BrokerDialer interface {
	Dial(addr, clientID string) (BrokerConnection, error)
}

// RealBrokerDialer dials a genuine STOMP broker via go-stomp/stomp.
type RealBrokerDialer struct{}

func (RealBrokerDialer) Dial(addr, clientID string) (BrokerConnection, error) {
	conn, err := stomp.Dial("tcp", addr, stomp.ConnOpt.Header("client-id", clientID))
	if err != nil {
		return nil, err
	}
	return &realBrokerConnection{conn: conn}, nil
}

type realBrokerConnection struct {
	conn *stomp.Conn
}

func (c *realBrokerConnection) Subscribe(destination, id, ack string) (*Subscription, error) {
	ackMode := stomp.AckAuto
	switch ack {
	case "client-individual":
		ackMode = stomp.AckClientIndividual
	case "client":
		ackMode = stomp.AckClient
	}
	sub, err := c.conn.Subscribe(destination, ackMode, stomp.SubscribeOpt.Id(id))
	if err != nil {
		return nil, err
	}
	out := make(chan BrokerMessage)
	go func() {
		defer close(out)
		for frame := range sub.C {
			if frame == nil {
				return
			}
			headers := make(map[string]string)
			for i := 0; i < frame.Header.Len(); i++ {
				k, v := frame.Header.GetAt(i)
				headers[k] = v
			}
			out <- BrokerMessage{Destination: frame.Destination, Headers: headers, Body: frame.Body, ack: frame}
		}
	}()
	return &Subscription{ID: id, C: out}, nil
}

func (c *realBrokerConnection) Send(destination, contentType string, headers map[string]string, body []byte) error {
	var opts []func(*frame.Frame) error
	for k, v := range headers {
		opts = append(opts, stomp.SendOpt.Header(k, v))
	}
	return c.conn.Send(destination, contentType, body, opts...)
}

func (c *realBrokerConnection) Ack(msg BrokerMessage) error {
	frame, ok := msg.ack.(*stomp.Message)
	if !ok || frame == nil {
		return nil
	}
	return c.conn.Ack(frame)
}

func (c *realBrokerConnection) Disconnect() error {
	return c.conn.Disconnect()
}
