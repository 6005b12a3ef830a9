// $ go test -count=1 -v pkg/rules/eventsource/*.go

package eventsource

import (
	"context"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/store"
	redistore "github.com/moonwalker/verdict/pkg/store/redis"
	"github.com/moonwalker/verdict/pkg/streams"
	"github.com/moonwalker/verdict/pkg/streams/streamstest"
)

func receive(t *testing.T, commands <-chan *rules.Command) *rules.Command {
	t.Helper()
	select {
	case cmd := <-commands:
		return cmd
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for command")
		return nil
	}
}

func TestNatsCommandSource(t *testing.T) {
	s := streams.NewStream(streamstest.RunServer(t))
	defer s.Close()

	commands := make(chan *rules.Command)
	src := NewNatsCommandSource(s)
	require.NoError(t, src.Receive(commands))
	defer src.Close()

	require.NoError(t, src.TriggerReload("discount"))
	cmd := receive(t, commands)
	assert.Equal(t, rules.CmdReload, cmd.Topic)
	assert.Equal(t, "discount", cmd.Engine)

	// non command subjects are ignored
	require.NoError(t, s.Publish(context.Background(), rules.Status, nil))
	require.NoError(t, s.Publish(context.Background(), rules.CmdStop, nil))
	cmd = receive(t, commands)
	assert.Equal(t, rules.CmdStop, cmd.Topic)
	assert.Empty(t, cmd.Engine)
}

func TestWatchBucket(t *testing.T) {
	s := streams.NewStream(streamstest.RunServer(t))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := s.Bucket(ctx, "rulesets", 1)
	require.NoError(t, err)

	commands := make(chan *rules.Command)
	go WatchBucket(ctx, b, commands)
	time.Sleep(100 * time.Millisecond)

	_, err = b.Put(ctx, "fraud-detection", []byte("{}"))
	require.NoError(t, err)

	cmd := receive(t, commands)
	assert.Equal(t, rules.CmdReload, cmd.Topic)
	assert.Equal(t, "fraud-detection", cmd.Engine)
}

type poolStore struct {
	store.Store
	pool *redis.Pool
}

func (p *poolStore) GetInternalStore() interface{} {
	return p.pool
}

func TestWatchKeyspaceCallbacks(t *testing.T) {
	kn, err := redistore.NewKeyspaceNotifications(&poolStore{pool: &redis.Pool{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	commands := make(chan *rules.Command, 1)
	// Listen fails without a server, the callbacks are registered before
	WatchKeyspace(ctx, kn, commands)

	kn.Dispatch(redistore.OpChanged, "rulesets:discount")
	cmd := receive(t, commands)
	assert.Equal(t, rules.CmdReload, cmd.Topic)
	assert.Equal(t, "discount", cmd.Engine)
}
