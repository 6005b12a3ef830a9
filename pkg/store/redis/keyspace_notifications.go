package redistore

import (
	"context"
	"fmt"
	"strings"

	"github.com/gomodule/redigo/redis"

	"github.com/moonwalker/verdict/pkg/store"
)

const (
	// E: keyevent events
	// g: generic commands
	// $: string commands
	// x: expired events
	knconfig = "Eg$x"
	psubchan = "__keyevent@*__:*"
)

const (
	OpChanged = "set"
	OpDeleted = "del"
	OpExpired = "expired"
)

type Callback func(key string, match string)

// KeyspaceNotifications dispatches redis keyevent notifications to callbacks
// registered per key pattern ("rulesets:*" style, one trailing wildcard).
type KeyspaceNotifications struct {
	redisPool *redis.Pool
	callbacks map[string]map[string]Callback
}

func NewKeyspaceNotifications(s store.Store) (*KeyspaceNotifications, error) {
	redisPool, ok := s.GetInternalStore().(*redis.Pool)
	if !ok {
		return nil, fmt.Errorf("failed to get redis pool")
	}

	return &KeyspaceNotifications{
		redisPool: redisPool,
		callbacks: map[string]map[string]Callback{
			OpChanged: {},
			OpDeleted: {},
			OpExpired: {},
		},
	}, nil
}

func (k *KeyspaceNotifications) KeyChanged(pattern string, cb Callback) {
	k.callbacks[OpChanged][pattern] = cb
}

func (k *KeyspaceNotifications) KeyDeleted(pattern string, cb Callback) {
	k.callbacks[OpDeleted][pattern] = cb
}

func (k *KeyspaceNotifications) KeyExpired(pattern string, cb Callback) {
	k.callbacks[OpExpired][pattern] = cb
}

// Listen blocks, dispatching notifications until ctx is done or the
// connection fails.
func (k *KeyspaceNotifications) Listen(ctx context.Context) error {
	// connection for pubsub
	pubSubConn := k.redisPool.Get()
	defer pubSubConn.Close()

	// set keyspace notifications config
	_, err := pubSubConn.Do("CONFIG", "SET", "notify-keyspace-events", knconfig)
	if err != nil {
		return err
	}

	psc := redis.PubSubConn{Conn: pubSubConn}
	err = psc.PSubscribe(psubchan)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		psc.PUnsubscribe()
	}()

	for {
		switch v := psc.Receive().(type) {
		case redis.Message:
			k.Dispatch(parseRedisEvent(v.Channel), string(v.Data))
		case redis.Subscription:
			if v.Count == 0 {
				return ctx.Err()
			}
		case error:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return v
		}
	}
}

// Dispatch calls the callbacks registered for op whose pattern matches key.
func (k *KeyspaceNotifications) Dispatch(op, key string) {
	for pattern, cb := range k.callbacks[op] {
		if matched, m := match(pattern, key); matched {
			cb(key, m)
		}
	}
}

func match(pattern string, value string) (matched bool, match string) {
	i := strings.Index(pattern, "*")
	if i > -1 {
		pattern = strings.Replace(pattern, "*", "", 1)
		if strings.HasPrefix(value, pattern) {
			matched = true
			match = value[i:]
		}
		return
	}
	return pattern == value, value
}

// "__keyevent@0__:set" => "set"
func parseRedisEvent(channel string) string {
	i := strings.LastIndex(channel, "__:")
	if i < 0 {
		return ""
	}
	return channel[i+3:]
}
