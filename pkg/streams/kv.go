package streams

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket is a jetstream key/value bucket.
type Bucket struct {
	name string
	kv   jetstream.KeyValue
}

// Bucket opens the named bucket, creating it when it does not exist yet.
func (this *Stream) Bucket(ctx context.Context, bucket string, history int) (*Bucket, error) {
	js, err := this.JetStream()
	if err != nil {
		return nil, err
	}

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		cfg := jetstream.KeyValueConfig{
			Bucket:   bucket,
			MaxBytes: MAX_BYTES,
		}
		if history > 0 {
			cfg.History = uint8(history)
		}
		kv, err = js.CreateKeyValue(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	return &Bucket{name: bucket, kv: kv}, nil
}

func (b *Bucket) Name() string {
	return b.name
}

// Get returns nil, nil for a missing or deleted key.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	kve, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	slog.Debug("get value by key", "bucket", b.name, "key", key, "took", getElapsed(start))
	return kve.Value(), nil
}

func (b *Bucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	start := time.Now()
	rev, err := b.kv.Put(ctx, key, value)

	slog.Debug("put key-value", "bucket", b.name, "key", key, "revision", rev, "took", getElapsed(start))
	return rev, err
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	return b.kv.Delete(ctx, key)
}

func (b *Bucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, err
	}
	defer keys.Stop()

	resp := make([]string, 0)
	for key := range keys.Keys() {
		resp = append(resp, key)
	}

	return resp, nil
}

// Watch calls fn for every key put or deleted after the call, until ctx is
// done.
func (b *Bucket) Watch(ctx context.Context, fn func(key string, deleted bool)) error {
	w, err := b.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case kve, ok := <-w.Updates():
			if !ok {
				return ctx.Err()
			}
			if kve == nil {
				continue
			}
			op := kve.Operation()
			fn(kve.Key(), op == jetstream.KeyValueDelete || op == jetstream.KeyValuePurge)
		}
	}
}
