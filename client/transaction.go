package client

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/umd-lib/plastron-go/internal/perr"
	"github.com/umd-lib/plastron-go/internal/plog"
)

// Transaction holds the URI of an open Fedora transaction plus the URLs
// derived from it for maintaining, committing, and rolling it back.
type Transaction struct {
	URI string

	keepAlive *transactionKeepAlive
}

// MaintenanceURL is the URL the keep-alive worker pings to extend the
// transaction's timeout.
func (t *Transaction) MaintenanceURL() string { return t.URI }

// CommitURL is the URL that commits the transaction. Built with plain string
// concatenation, not path.Join, since Join's slash-collapsing would mangle
// the "//" after the URL scheme.
func (t *Transaction) CommitURL() string { return strings.TrimRight(t.URI, "/") + "/fcr:tx/fcr:commit" }

// RollbackURL is the URL that rolls back the transaction.
func (t *Transaction) RollbackURL() string {
	return strings.TrimRight(t.URI, "/") + "/fcr:tx/fcr:rollback"
}

// transactionKeepAlive periodically POSTs to a transaction's maintenance
// URL so the repository does not expire it while a long-running job holds
// it open, mirroring the background thread in the original client.
type transactionKeepAlive struct {
	tx       *Transaction
	client   *Client
	interval time.Duration
	logger   *plog.ContextLogger

	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	failed atomic.Bool
	errMu  sync.Mutex
	err    error
}

func newTransactionKeepAlive(tx *Transaction, c *Client, interval time.Duration, logger *plog.ContextLogger) *transactionKeepAlive {
	return &transactionKeepAlive{
		tx:       tx,
		client:   c,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the keep-alive goroutine. Safe to call once per instance.
func (k *transactionKeepAlive) Start() {
	go k.run()
}

func (k *transactionKeepAlive) run() {
	defer close(k.done)
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-k.stop:
			return
		case <-ticker.C:
			resp, err := k.client.Post(k.tx.MaintenanceURL(), nil, nil)
			if err != nil {
				k.fail(err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode >= 400 {
				k.fail(perr.NewClientError(k.tx.MaintenanceURL(), resp.StatusCode, resp.Status))
				return
			}
			k.logger.Debugf("kept transaction %s alive", k.tx.URI)
		}
	}
}

func (k *transactionKeepAlive) fail(err error) {
	k.errMu.Lock()
	k.err = err
	k.errMu.Unlock()
	k.failed.Store(true)
	k.logger.WithError(err).Error("transaction keep-alive failed")
}

// Failed reports whether the keep-alive worker has observed a failure.
func (k *transactionKeepAlive) Failed() bool { return k.failed.Load() }

// Err returns the error observed by the keep-alive worker, if any.
func (k *transactionKeepAlive) Err() error {
	k.errMu.Lock()
	defer k.errMu.Unlock()
	return k.err
}

// Stop signals the keep-alive goroutine to exit and waits for it to do so.
// Safe to call more than once.
func (k *transactionKeepAlive) Stop() {
	k.once.Do(func() { close(k.stop) })
	<-k.done
}

// DefaultKeepAliveInterval is how often the keep-alive worker pings an open
// transaction; fcrepo's default transaction timeout is three minutes, so a
// ninety-second interval gives two attempts of margin.
const DefaultKeepAliveInterval = 90 * time.Second

// beginTransaction POSTs to the endpoint's transaction creation URL and
// returns a Transaction whose keep-alive worker is already running.
func beginTransaction(c *Client, interval time.Duration) (*Transaction, error) {
	resp, err := c.Post(c.Endpoint.TransactionEndpoint(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, perr.NewClientError(c.Endpoint.TransactionEndpoint(), resp.StatusCode, resp.Status)
	}
	txURI := getLocation(resp, c.Logger)
	if txURI == "" {
		txURI = resp.Header.Get("Location")
	}
	tx := &Transaction{URI: txURI}
	tx.keepAlive = newTransactionKeepAlive(tx, c, interval, c.Logger.WithField("transaction", txURI))
	tx.keepAlive.Start()
	return tx, nil
}
