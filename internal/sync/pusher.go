package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"weighbridge-service/internal/config"
	"weighbridge-service/internal/domain/weighing"
)

// DocumentSource supplies completed documents awaiting delivery.
type DocumentSource interface {
	UnpushedDocuments(ctx context.Context, limit int) ([]weighing.ShipmentDocument, error)
	MarkDocumentPushed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Pusher periodically sweeps completed shipment documents that have not yet
// been delivered to the logistics platform and pushes them. A failed push is
// left unmarked and retried on the next sweep.
type Pusher struct {
	source    DocumentSource
	cfg       config.PlatformConfig
	http      *http.Client
	batchSize int
	log       zerolog.Logger
}

func NewPusher(source DocumentSource, cfg config.PlatformConfig, log zerolog.Logger) *Pusher {
	return &Pusher{
		source:    source,
		cfg:       cfg,
		http:      &http.Client{Timeout: 15 * time.Second},
		batchSize: 20,
		log:       log,
	}
}

// Run blocks until ctx is cancelled, sweeping at the configured interval.
func (p *Pusher) Run(ctx context.Context) {
	if p.cfg.PushURL == "" {
		p.log.Info().Msg("no platform push url configured, pusher disabled")
		return
	}
	interval := p.cfg.PushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		p.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (p *Pusher) sweep(ctx context.Context) {
	docs, err := p.source.UnpushedDocuments(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to load unpushed documents")
		return
	}
	for i := range docs {
		doc := &docs[i]
		if err := p.push(ctx, doc); err != nil {
			p.log.Error().Err(err).Str("document_id", doc.ID.String()).
				Msg("document push failed, will retry")
			continue
		}
		if err := p.source.MarkDocumentPushed(ctx, doc.ID, time.Now()); err != nil {
			// The platform got the document; the next sweep re-pushes,
			// which the platform must deduplicate by document id.
			p.log.Error().Err(err).Str("document_id", doc.ID.String()).
				Msg("failed to mark document pushed")
			continue
		}
		p.log.Info().Str("document_id", doc.ID.String()).Msg("document pushed to platform")
	}
}

func (p *Pusher) push(ctx context.Context, doc *weighing.ShipmentDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.PushURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("platform returned status %d", resp.StatusCode)
	}
	return nil
}
