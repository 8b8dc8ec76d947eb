package pipeline

import (
	"context"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/w1tte/hltv-scraper-sub000/internal/ingest"
)

// CompletionEvent is published for every unit that reached done.
type CompletionEvent struct {
	Stage       string    `json:"stage"`
	Key         string    `json:"key"`
	Parsed      int       `json:"parsed"`
	Quarantined int       `json:"quarantined"`
	Locators    []string  `json:"locators"`
	CompletedAt time.Time `json:"completed_at"`
}

// archiveDocs stores raw documents under raw/<stage>/<sha256>.html. Archive
// failures are logged and never fail the unit.
func (o *Orchestrator) archiveDocs(ctx context.Context, stage string, u Unit, docs []ingest.Document) {
	if o.archive == nil {
		return
	}
	for _, doc := range docs {
		sum, err := o.hasher.Hash(doc.Body)
		if err != nil {
			o.logger.Warn("hashing document for archive", zap.String("locator", doc.Locator), zap.Error(err))
			continue
		}
		key := path.Join("raw", stage, sum+".html")
		uri, err := o.archive.PutObject(ctx, key, contentType(doc), doc.Body)
		if err != nil {
			o.logger.Warn("archiving document", zap.String("key", u.Key), zap.String("locator", doc.Locator), zap.Error(err))
			continue
		}
		o.logger.Debug("document archived", zap.String("locator", doc.Locator), zap.String("uri", uri))
	}
}

func contentType(doc ingest.Document) string {
	if ct := doc.Headers.Get("Content-Type"); ct != "" && strings.Contains(ct, "html") {
		return ct
	}
	return "text/html; charset=utf-8"
}

// publishDone announces a completed unit. Publish failures are logged only.
func (o *Orchestrator) publishDone(ctx context.Context, stage string, u Unit, out Outcome) {
	if o.publisher == nil {
		return
	}
	evt := CompletionEvent{
		Stage:       stage,
		Key:         u.Key,
		Parsed:      out.Parsed,
		Quarantined: out.Quarantined,
		Locators:    u.Locators,
		CompletedAt: o.clock.Now().UTC(),
	}
	id, err := o.publisher.Publish(ctx, o.topic, evt)
	if err != nil {
		o.logger.Warn("publishing completion event", zap.String("key", u.Key), zap.Error(err))
		return
	}
	o.logger.Debug("completion event published", zap.String("key", u.Key), zap.String("message_id", id))
}
