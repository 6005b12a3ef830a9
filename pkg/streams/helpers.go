package streams

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// NKeySignatureHandler signs the server nonce with the nkey seed.
func NKeySignatureHandler(seed string, b []byte) ([]byte, error) {
	sk, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, err
	}
	return sk.Sign(b)
}

func getElapsed(start time.Time) string {
	return time.Since(start).String()
}

// connection event handlers

func errorHandler(nc *nats.Conn, sub *nats.Subscription, err error) {
	if !errors.Is(err, nats.ErrSlowConsumer) || sub == nil {
		slog.Error("nats async error", "err", err)
		return
	}

	pending, pendingBytes, perr := sub.Pending()
	dropped, derr := sub.Dropped()
	if perr != nil || derr != nil {
		slog.Error("slow consumer, subscription state unavailable", "subject", sub.Subject, "err", errors.Join(perr, derr))
		return
	}
	slog.Error("slow consumer, commands are being dropped",
		"subject", sub.Subject,
		"pending", pending,
		"pendingBytes", pendingBytes,
		"dropped", dropped,
	)
}

// reload commands published while disconnected are lost
func disconnectHandler(nc *nats.Conn, err error) {
	slog.Warn("nats disconnected", "err", err)
}

func reconnectHandler(nc *nats.Conn) {
	slog.Info("nats reconnected", "url", nc.ConnectedUrl())
}

func closedHandler(nc *nats.Conn) {
	slog.Debug("nats connection closed", "err", nc.LastError())
}
