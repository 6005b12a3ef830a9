package adapters

import (
	"context"
	"time"

	"github.com/moonwalker/verdict/pkg/elastic"
	"github.com/moonwalker/verdict/pkg/rules/action"
)

const maxAuditHits = 100

// AuditIndex writes audit records to a daily Elasticsearch index named
// "<prefix>_YYYYMMDD".
type AuditIndex struct {
	client *elastic.Client
	prefix string
}

func NewAuditIndex(client *elastic.Client, prefix string) *AuditIndex {
	return &AuditIndex{client: client, prefix: prefix}
}

func (a *AuditIndex) Audit(ctx context.Context, rec *action.AuditRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return a.client.Index(ctx, elastic.DatedIndex(a.prefix, ts), rec.ID, rec)
}

// ForTransaction returns the audit records of a transaction across all
// daily indices, oldest first.
func (a *AuditIndex) ForTransaction(ctx context.Context, transactionID string) ([]*action.AuditRecord, error) {
	res, err := a.client.Search(ctx, a.prefix+"_*", elastic.Term("transactionId.keyword", transactionID, maxAuditHits))
	if err != nil {
		return nil, err
	}
	var recs []*action.AuditRecord
	if err := res.Sources(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}
