package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/moonwalker/verdict/pkg/elastic"
	"github.com/moonwalker/verdict/pkg/rules/action"
	"github.com/moonwalker/verdict/pkg/rules/adapters"
	"github.com/moonwalker/verdict/pkg/rules/catalog"
	"github.com/moonwalker/verdict/pkg/rules/repo"
	"github.com/moonwalker/verdict/pkg/store"
	boltstore "github.com/moonwalker/verdict/pkg/store/bolt"
	redistore "github.com/moonwalker/verdict/pkg/store/redis"
	s3store "github.com/moonwalker/verdict/pkg/store/s3"
	"github.com/moonwalker/verdict/pkg/streams"
	"github.com/moonwalker/verdict/pkg/worker"
)

// backend holds the rule-set repo and whatever it was built on, so hot
// reload sources can watch the same place.
type backend struct {
	repo   repo.RuleSetRepo
	store  store.Store
	bucket *streams.Bucket
	dir    string
}

func (cfg *config) stream() *streams.Stream {
	if cfg.NatsURL == "" {
		return nil
	}
	s := streams.NewStream(cfg.NatsURL)
	if cfg.NatsNKeyUser != "" {
		s.SetNKeys(cfg.NatsNKeyUser, cfg.NatsNKeySeed)
	}
	if cfg.NatsCreds != "" {
		s.SetCredentialsPath(cfg.NatsCreds)
	}
	return s
}

func openBackend(cfg *config, stream *streams.Stream) (*backend, error) {
	b := &backend{}

	switch cfg.Repo {
	case repoMemory:
		b.repo = repo.NewInMemoryRuleSetRepo()
	case repoDisk:
		b.dir = cfg.RulesDir
		b.repo = repo.NewDiskRuleSetRepo(cfg.RulesDir)
	case repoRedis:
		b.store = redistore.New(cfg.RedisURL)
		b.repo = repo.NewStoreRuleSetRepo(repoRedis, b.store)
	case repoBolt:
		b.store = boltstore.New(filepath.Clean(cfg.BoltPath), "rulesets")
		b.repo = repo.NewStoreRuleSetRepo(repoBolt, b.store)
	case repoS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 repo")
		}
		b.store = s3store.New(cfg.S3Bucket)
		b.repo = repo.NewStoreRuleSetRepo(repoS3, b.store)
	case repoPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required for the postgres repo")
		}
		r, err := repo.NewPostgresRuleSetRepo(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		b.repo = r
	case repoJetstream:
		if stream == nil {
			return nil, fmt.Errorf("NATS_URL is required for the jetstream repo")
		}
		r, err := repo.NewJetstreamRuleSetRepo(stream)
		if err != nil {
			return nil, err
		}
		if kv, ok := r.(interface{ Bucket() *streams.Bucket }); ok {
			b.bucket = kv.Bucket()
		}
		b.repo = r
	default:
		return nil, fmt.Errorf("unknown repo %q, must be one of %v", cfg.Repo, repoKinds)
	}

	if cfg.Repo == repoMemory || (cfg.Seed && b.repo.Count() == 0) {
		if err := seedCatalog(b.repo); err != nil {
			b.repo.Close()
			return nil, err
		}
	}
	return b, nil
}

func seedCatalog(r repo.RuleSetRepo) error {
	sets, err := catalog.All()
	if err != nil {
		return err
	}
	for _, rs := range sets {
		if err := r.Save(rs.Name, rs.Rules); err != nil {
			return fmt.Errorf("seed %s: %w", rs.Name, err)
		}
	}
	slog.Info("catalog rule-sets seeded", "repo", r.Name(), "count", len(sets))
	return nil
}

// ports wires the configured collaborators. Anything left unset falls back
// to the dispatcher's logging ports. The returned dispatcher is non nil
// when workflows go to a redis queue and should be run.
func (cfg *config) ports(stream *streams.Stream) (action.Ports, *worker.Dispatcher, error) {
	var p action.Ports

	if cfg.WebhookURL != "" {
		hook := adapters.NewWebhook(cfg.WebhookURL)
		if cfg.WebhookToken != "" {
			hook.SetBearerToken(cfg.WebhookToken)
		}
		p.Notifications = hook
		p.Compliance = hook
	}
	if stream != nil {
		p.Compliance = adapters.NewNatsCompliance(stream, cfg.ComplianceSubject)
	}

	if cfg.AuditIndex != "" {
		var addrs []string
		if cfg.ElasticURL != "" {
			addrs = []string{cfg.ElasticURL}
		}
		client, err := elastic.NewClient(addrs...)
		if err != nil {
			return p, nil, err
		}
		p.Audit = adapters.NewAuditIndex(client, cfg.AuditIndex)
	}

	if cfg.Repo == repoRedis || cfg.WorkflowRedisURL != "" {
		p.Loyalty = adapters.NewLedger(redistore.New(cfg.RedisURL))
	}

	var jobs *worker.Dispatcher
	if cfg.WorkflowRedisURL != "" {
		jobs = worker.NewDispatcher("verdict", worker.NewRedisPool(cfg.WorkflowRedisURL), cfg.WorkflowWorkers)
		queue := adapters.NewWorkflowQueue(jobs, adapters.WORKFLOW_QUEUE)
		jobs.AddHandler(queue.Queue(), queue.Handler(runWorkflow))
		p.Workflows = queue
	}

	return p, jobs, nil
}

// runWorkflow walks the workflow steps. Steps are names only, each one is
// logged as it is reached.
func runWorkflow(ctx context.Context, id string, wf *action.Workflow) error {
	if wf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wf.Timeout)
		defer cancel()
	}
	start := time.Now()
	for i, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow %s stopped at step %s: %w", id, step, err)
		}
		slog.Info("workflow step", "workflow", id, "type", wf.Type, "step", step, "index", i)
	}
	slog.Info("workflow completed", "workflow", id, "type", wf.Type, "took", time.Since(start).String())
	return nil
}
