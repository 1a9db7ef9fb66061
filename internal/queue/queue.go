// Package queue carries write batches over a Redis stream.
//
// Producers append one WriteBatchItem per stream entry under the "body"
// field. A consumer group member reads entries in groups, hands every read
// group to the write orchestrator as one batch and acknowledges all of the
// entries afterwards, whatever the per-index outcome.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"

	"github.com/Aman-CERP/searchgate/internal/batch"
	"github.com/Aman-CERP/searchgate/internal/ingest"
	"github.com/Aman-CERP/searchgate/pkg/version"
)

// BodyField is the stream entry field holding the encoded item.
const BodyField = "body"

// Defaults for Config zero values.
const (
	DefaultStream    = "searchgate:writes"
	DefaultGroup     = "searchgate"
	DefaultBatchSize = 10
	DefaultBlock     = 5 * time.Second
)

// pendingID reads this consumer's delivered but unacknowledged entries;
// newID reads entries never delivered to the group.
const (
	pendingID = "0"
	newID     = ">"
)

// Config names the stream and the consumer's place in its group.
type Config struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64
	Block     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Consumer == "" {
		c.Consumer = "consumer-1"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Block <= 0 {
		c.Block = DefaultBlock
	}
	return c
}

// NewClient connects to Redis at addrs.
func NewClient(addrs []string) (rueidis.Client, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  addrs,
		ClientName:   version.UserAgent(),
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return client, nil
}

// Applier applies one write batch.
type Applier interface {
	Apply(ctx context.Context, items []batch.WriteBatchItem) ingest.Report
}

// Consumer reads write batches from a stream as a consumer group member.
type Consumer struct {
	client  rueidis.Client
	applier Applier
	cfg     Config
	logger  *slog.Logger

	readID string
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the consumer's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConsumer creates a Consumer.
func NewConsumer(client rueidis.Client, applier Applier, cfg Config, opts ...Option) *Consumer {
	c := &Consumer{
		client:  client,
		applier: applier,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		readID:  pendingID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureGroup creates the consumer group, and the stream if needed.
// An existing group is not an error.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	cmd := c.client.B().XgroupCreate().Key(c.cfg.Stream).Group(c.cfg.Group).Id("0").Mkstream().Build()
	err := c.client.Do(ctx, cmd).Error()
	if err != nil && !rueidis.IsRedisBusyGroup(err) {
		return fmt.Errorf("create consumer group %s on %s: %w", c.cfg.Group, c.cfg.Stream, err)
	}
	return nil
}

// Poll performs one read-apply-acknowledge cycle and returns the number of
// entries acknowledged. A read that times out returns 0 and no error.
//
// The consumer first drains its own pending entries, left behind by a
// previous run that stopped between apply and acknowledge, then moves on to
// new entries.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	builder := c.client.B().Xreadgroup().Group(c.cfg.Group, c.cfg.Consumer).Count(c.cfg.BatchSize)
	var cmd rueidis.Completed
	if c.readID == newID {
		cmd = builder.Block(c.cfg.Block.Milliseconds()).Streams().Key(c.cfg.Stream).Id(newID).Build()
	} else {
		cmd = builder.Streams().Key(c.cfg.Stream).Id(c.readID).Build()
	}

	streams, err := c.client.Do(ctx, cmd).AsXRead()
	if rueidis.IsRedisNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read from %s: %w", c.cfg.Stream, err)
	}

	entries := streams[c.cfg.Stream]
	if len(entries) == 0 {
		if c.readID == pendingID {
			c.readID = newID
		}
		return 0, nil
	}

	ids := make([]string, 0, len(entries))
	items := make([]batch.WriteBatchItem, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
		item, err := decodeEntry(e)
		if err != nil {
			c.logger.Warn("queue_entry_undecodable",
				slog.String("stream", c.cfg.Stream),
				slog.String("entry_id", e.ID),
				slog.String("error", err.Error()))
			continue
		}
		items = append(items, item)
	}

	if len(items) > 0 {
		report := c.applier.Apply(ctx, items)
		c.logger.Debug("queue_batch_applied",
			slog.String("batch_id", report.BatchID),
			slog.Int("entries", len(entries)),
			slog.Int("failed_indexes", report.Failed()))
	}

	ack := c.client.B().Xack().Key(c.cfg.Stream).Group(c.cfg.Group).Id(ids...).Build()
	if err := c.client.Do(ctx, ack).Error(); err != nil {
		return 0, fmt.Errorf("ack %d entries on %s: %w", len(ids), c.cfg.Stream, err)
	}
	return len(ids), nil
}

// Run ensures the group exists and polls until ctx is cancelled. Read and
// acknowledge failures are logged and retried after a pause.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info("queue_consumer_started",
		slog.String("stream", c.cfg.Stream),
		slog.String("group", c.cfg.Group),
		slog.String("consumer", c.cfg.Consumer))

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("queue_poll_failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func decodeEntry(e rueidis.XRangeEntry) (batch.WriteBatchItem, error) {
	body, ok := e.FieldValues[BodyField]
	if !ok {
		return batch.WriteBatchItem{}, fmt.Errorf("entry has no %q field", BodyField)
	}
	return batch.DecodeItem([]byte(body))
}

// Publisher appends write batch items to a stream.
type Publisher struct {
	client rueidis.Client
	stream string
}

// NewPublisher creates a Publisher for stream.
func NewPublisher(client rueidis.Client, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{client: client, stream: stream}
}

// Publish appends one item and returns its entry ID.
func (p *Publisher) Publish(ctx context.Context, item batch.WriteBatchItem) (string, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode item for %s: %w", item.IndexName, err)
	}
	cmd := p.client.B().Xadd().Key(p.stream).Id("*").FieldValue().FieldValue(BodyField, string(body)).Build()
	id, err := p.client.Do(ctx, cmd).ToString()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.stream, err)
	}
	return id, nil
}

// PublishAll appends items in order in one round trip and returns their
// entry IDs.
func (p *Publisher) PublishAll(ctx context.Context, items []batch.WriteBatchItem) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	cmds := make(rueidis.Commands, 0, len(items))
	for _, item := range items {
		body, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode item for %s: %w", item.IndexName, err)
		}
		cmds = append(cmds, p.client.B().Xadd().Key(p.stream).Id("*").FieldValue().FieldValue(BodyField, string(body)).Build())
	}

	ids := make([]string, 0, len(items))
	for i, res := range p.client.DoMulti(ctx, cmds...) {
		id, err := res.ToString()
		if err != nil {
			return ids, fmt.Errorf("publish item %d to %s: %w", i, p.stream, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
