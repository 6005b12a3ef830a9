package streams

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	MAX_BYTES = 1000000000 // 1 GiB

	// FlushTimeout bounds Publish when ctx carries no deadline.
	FlushTimeout = 5 * time.Second
)

var ErrClosed = errors.New("stream closed")

// Stream holds one shared nats connection for commands, alerts and the
// jetstream key/value buckets.
type Stream struct {
	natsURL             string
	natsNkeyUser        string
	natsNkeySeed        string
	natsCredentialsPath string

	mu     sync.Mutex
	nc     *nats.Conn
	closed bool
}

func NewStream(url string) *Stream {
	return &Stream{natsURL: url}
}

func (this *Stream) SetNKeys(user, seed string) {
	this.natsNkeyUser = user
	this.natsNkeySeed = seed
}

func (this *Stream) SetCredentialsPath(path string) {
	this.natsCredentialsPath = path
}

func (this *Stream) URL() string {
	return this.natsURL
}

// Options returns the auth options followed by extra.
func (this *Stream) Options(extra ...nats.Option) []nats.Option {
	opts := make([]nats.Option, 0, len(extra)+1)

	// connect with nkeys if specified
	if len(this.natsNkeyUser) > 0 && len(this.natsNkeySeed) > 0 {
		opts = append(opts, nats.Nkey(this.natsNkeyUser, this.sigHandler))
	} else if len(this.natsCredentialsPath) > 0 {
		// connect with credentials if exists
		if _, err := os.Stat(this.natsCredentialsPath); err == nil {
			opts = append(opts, nats.UserCredentials(this.natsCredentialsPath))
		}
	}

	return append(opts, extra...)
}

func (this *Stream) sigHandler(b []byte) ([]byte, error) {
	return NKeySignatureHandler(this.natsNkeySeed, b)
}

// Conn returns the shared connection, dialing it on first use or after it
// was closed by the server.
func (this *Stream) Conn() (*nats.Conn, error) {
	this.mu.Lock()
	defer this.mu.Unlock()

	if this.closed {
		return nil, ErrClosed
	}
	if this.nc != nil && !this.nc.IsClosed() {
		return this.nc, nil
	}

	nc, err := nats.Connect(this.natsURL, this.Options(
		nats.ErrorHandler(errorHandler),
		nats.DisconnectErrHandler(disconnectHandler),
		nats.ReconnectHandler(reconnectHandler),
		nats.ClosedHandler(closedHandler),
	)...)
	if err != nil {
		return nil, err
	}

	this.nc = nc
	return nc, nil
}

func (this *Stream) JetStream() (jetstream.JetStream, error) {
	nc, err := this.Conn()
	if err != nil {
		return nil, err
	}
	return jetstream.New(nc)
}

// Publish sends payload on subject with core nats and waits for the server
// to acknowledge the flush.
func (this *Stream) Publish(ctx context.Context, subject string, payload []byte) error {
	nc, err := this.Conn()
	if err != nil {
		return err
	}

	if err := nc.Publish(subject, payload); err != nil {
		return err
	}

	// FlushWithContext rejects a context without a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, FlushTimeout)
		defer cancel()
	}
	return nc.FlushWithContext(ctx)
}

func (this *Stream) Close() {
	this.mu.Lock()
	defer this.mu.Unlock()

	this.closed = true
	if this.nc != nil {
		this.nc.Close()
		this.nc = nil
	}
}
