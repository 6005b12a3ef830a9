package main

import (
	"time"

	"github.com/moonwalker/verdict/pkg/cloudflare/r2"
	"github.com/moonwalker/verdict/pkg/env"
)

const (
	repoMemory    = "memory"
	repoDisk      = "disk"
	repoRedis     = "redis"
	repoBolt      = "bolt"
	repoS3        = "s3"
	repoPostgres  = "postgres"
	repoJetstream = "jetstream"
)

var repoKinds = []string{repoMemory, repoDisk, repoRedis, repoBolt, repoS3, repoPostgres, repoJetstream}

type config struct {
	Repo        string
	RulesDir    string
	Seed        bool
	RedisURL    string
	BoltPath    string
	S3Bucket    string
	PostgresURL string

	NatsURL      string
	NatsNKeyUser string
	NatsNKeySeed string
	NatsCreds    string

	MetricsAddr   string
	StatsInterval time.Duration

	ElasticURL        string
	AuditIndex        string
	WebhookURL        string
	WebhookToken      string
	WorkflowRedisURL  string
	WorkflowWorkers   int
	ComplianceSubject string

	Archive r2.Config

	Debug bool
}

func loadConfig() *config {
	return &config{
		Repo:        env.Get("VERDICT_REPO", repoMemory),
		RulesDir:    env.Get("VERDICT_RULES_DIR", "rules"),
		Seed:        env.Bool("VERDICT_SEED", false),
		RedisURL:    env.Get("REDIS_URL", "redis://localhost:6379"),
		BoltPath:    env.Get("BOLT_PATH", "verdict.db"),
		S3Bucket:    env.Get("S3_BUCKET", ""),
		PostgresURL: env.Get("POSTGRES_URL", ""),

		NatsURL:      env.Get("NATS_URL", ""),
		NatsNKeyUser: env.Get("NATS_NKEY_USER", ""),
		NatsNKeySeed: env.Get("NATS_NKEY_SEED", ""),
		NatsCreds:    env.Get("NATS_CREDS", ""),

		MetricsAddr:   env.Get("METRICS_ADDR", ":9090"),
		StatsInterval: env.Duration("VERDICT_STATS_INTERVAL", time.Minute),

		ElasticURL:        env.Get("ELASTICSEARCH_URL", ""),
		AuditIndex:        env.Get("ELASTIC_AUDIT_INDEX", ""),
		WebhookURL:        env.Get("NOTIFY_WEBHOOK_URL", ""),
		WebhookToken:      env.Get("NOTIFY_WEBHOOK_TOKEN", ""),
		WorkflowRedisURL:  env.Get("WORKFLOW_REDIS_URL", ""),
		WorkflowWorkers:   4,
		ComplianceSubject: env.Get("COMPLIANCE_SUBJECT", ""),

		Archive: r2.ConfigFromEnv(),

		Debug: env.Bool("DEBUG", false),
	}
}

func validRepo(kind string) bool {
	for _, k := range repoKinds {
		if k == kind {
			return true
		}
	}
	return false
}
