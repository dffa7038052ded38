// Package nats publishes crawl liveness and completion events.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/kailas-cloud/syncdex/internal/usecase/crawl"
)

// Subject suffixes under the configured prefix.
const (
	SubjectHeartbeat = "crawl.heartbeat"
	SubjectCompleted = "crawl.completed"
)

// conn is the consumer interface for the NATS connection (ISP).
type conn interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher implements crawl.Publisher over NATS core subjects.
type Publisher struct {
	nc     conn
	prefix string
	logger *zap.Logger
}

var _ crawl.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher writing to "<prefix>.crawl.*".
func NewPublisher(nc conn, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{nc: nc, prefix: prefix, logger: logger}
}

// Heartbeat publishes crawl progress.
func (p *Publisher) Heartbeat(ctx context.Context, progress crawl.Progress) error {
	return p.publish(ctx, SubjectHeartbeat, progress)
}

// Completed publishes the final crawl summary.
func (p *Publisher) Completed(ctx context.Context, s crawl.Summary) error {
	return p.publish(ctx, SubjectCompleted, s)
}

func (p *Publisher) publish(ctx context.Context, suffix string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", suffix, err)
	}
	msg := &nats.Msg{Subject: p.prefix + "." + suffix, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Connect dials NATS with unlimited reconnects and logs connection state changes.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("syncdex"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// LogPublisher implements crawl.Publisher by logging events. Used when NATS is not configured.
type LogPublisher struct {
	logger *zap.Logger
}

var _ crawl.Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Heartbeat logs crawl progress at debug level.
func (p *LogPublisher) Heartbeat(_ context.Context, progress crawl.Progress) error {
	p.logger.Debug("Crawl heartbeat",
		zap.String("tenant", progress.Tenant),
		zap.String("integration", progress.Integration),
		zap.String("collection", progress.Collection),
		zap.Int("pages", progress.Pages),
	)
	return nil
}

// Completed is a no-op: the crawl service already logs its summary line.
func (p *LogPublisher) Completed(context.Context, crawl.Summary) error { return nil }
