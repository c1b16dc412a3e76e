// Package events publishes orchestration run lifecycle events over
// NATS JetStream. The publisher is optional: a nil *Publisher is a
// safe no-op, so callers never branch on whether NATS is configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	// StreamRuns holds run lifecycle events
	StreamRuns = "ULTRA_RUNS"

	SubjectRunStarted     = "ultra.runs.started"
	SubjectBatchCompleted = "ultra.runs.batch"
	SubjectRunCompleted   = "ultra.runs.completed"
)

// RunStarted is emitted when orchestration begins
type RunStarted struct {
	RunID      string    `json:"run_id"`
	TotalTests int       `json:"total_tests"`
	Batches    int       `json:"batches"`
	StartedAt  time.Time `json:"started_at"`
}

// BatchCompleted is emitted after each batch is aggregated
type BatchCompleted struct {
	RunID  string `json:"run_id"`
	Index  int    `json:"index"`
	Tier   string `json:"tier"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
}

// RunCompleted is emitted with the final report stats
type RunCompleted struct {
	RunID       string  `json:"run_id"`
	FailedFast  bool    `json:"failed_fast"`
	TotalTests  int     `json:"total_tests"`
	FailedTests int     `json:"failed_tests"`
	CachedTests int     `json:"cached_tests"`
	Speedup     float64 `json:"speedup"`
}

// Publisher wraps a NATS connection and JetStream context
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a NATS connection and ensures the run stream
// exists. An empty URL returns a nil publisher, which is valid.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.Name("ultra-orchestrator"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{nc: nc, js: js}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info().Str("url", url).Msg("connected to NATS JetStream")
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamRuns,
		Subjects:    []string{"ultra.runs.>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Description: "Ultra orchestration run lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", StreamRuns, err)
	}
	return nil
}

// Publish emits one event. Publish failures are logged, never fatal:
// event delivery is observability, not orchestration correctness.
func (p *Publisher) Publish(ctx context.Context, subject string, event any) {
	if p == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to encode event")
		return
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
	}
}

// Close drains the underlying connection
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}
