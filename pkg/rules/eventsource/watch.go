package eventsource

import (
	"context"
	"log/slog"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/repo"
	redistore "github.com/moonwalker/verdict/pkg/store/redis"
	"github.com/moonwalker/verdict/pkg/streams"
)

// WatchBucket turns every change of the jetstream rule-set bucket into a
// reload command for that rule-set. It blocks until ctx is done.
func WatchBucket(ctx context.Context, b *streams.Bucket, commands chan<- *rules.Command) error {
	return b.Watch(ctx, func(key string, deleted bool) {
		slog.Debug("ruleset changed", "bucket", b.Name(), "ruleset", key, "deleted", deleted)
		send(ctx, commands, rules.NewCommand(rules.CmdReload, key))
	})
}

// WatchKeyspace turns redis keyspace events on "rulesets:*" keys into reload
// commands. Every instance reloads, there is no cross-instance lock. It
// blocks until ctx is done.
func WatchKeyspace(ctx context.Context, kn *redistore.KeyspaceNotifications, commands chan<- *rules.Command) error {
	reload := func(key, name string) {
		slog.Debug("ruleset changed", "key", key)
		send(ctx, commands, rules.NewCommand(rules.CmdReload, name))
	}

	pattern := repo.RULESET_PREFIX + "*"
	kn.KeyChanged(pattern, reload)
	kn.KeyDeleted(pattern, reload)
	kn.KeyExpired(pattern, reload)

	return kn.Listen(ctx)
}

func send(ctx context.Context, commands chan<- *rules.Command, cmd *rules.Command) {
	select {
	case commands <- cmd:
	case <-ctx.Done():
	}
}
