package shipper

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/obsidianstack/scalarship/agent/internal/config"
	"github.com/obsidianstack/scalarship/pkg/wire"
)

// defaultSendTimeout bounds a single attempt. A timed-out attempt fails
// with DeadlineExceeded and is retried.
const defaultSendTimeout = 10 * time.Second

// Client issues WriterService calls through a Retrier.
type Client struct {
	conn        *grpc.ClientConn
	retrier     *Retrier
	auth        config.AuthConfig
	sendTimeout time.Duration
}

// Dial opens a connection to cfg.ServerEndpoint with auth configured from
// cfg.ServerAuth. The connection is established lazily on the first call.
func Dial(cfg config.AgentConfig, opts ...RetryOption) (*Client, error) {
	dopts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.ServerEndpoint, dopts...)
	if err != nil {
		return nil, fmt.Errorf("shipper: dial %s: %w", cfg.ServerEndpoint, err)
	}
	c := NewClient(conn, cfg.ServerAuth, NewRetrier(opts...))
	if cfg.SendTimeout > 0 {
		c.sendTimeout = cfg.SendTimeout
	}
	return c, nil
}

// NewClient wraps an existing connection. The caller keeps ownership of
// conn only until Close is called.
func NewClient(conn *grpc.ClientConn, auth config.AuthConfig, retrier *Retrier) *Client {
	if retrier == nil {
		retrier = NewRetrier()
	}
	return &Client{
		conn:        conn,
		retrier:     retrier,
		auth:        auth,
		sendTimeout: defaultSendTimeout,
	}
}

// WriteScalar sends one batch.
func (c *Client) WriteScalar(ctx context.Context, batch *wire.Batch) error {
	return c.retrier.Do(ctx, "WriteScalar", func(ctx context.Context) error {
		return c.invoke(ctx, wire.WriteScalarMethod, batch, &wire.WriteScalarResponse{})
	})
}

// DeleteExperiment asks the collector to delete the experiment with id.
func (c *Client) DeleteExperiment(ctx context.Context, id string) error {
	req := &wire.DeleteExperimentRequest{ExperimentID: id}
	return c.retrier.Do(ctx, "DeleteExperiment", func(ctx context.Context) error {
		return c.invoke(ctx, wire.DeleteExperimentMethod, req, &wire.DeleteExperimentResponse{})
	})
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp wire.Message) error {
	ctx, cancel := context.WithTimeout(c.authorize(ctx), c.sendTimeout)
	defer cancel()
	return c.conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(wire.Codec{}))
}

// authorize injects the API key header if configured.
func (c *Client) authorize(ctx context.Context) context.Context {
	if c.auth.Mode != "apikey" || c.auth.KeyEnv == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, c.auth.HeaderName(), c.auth.Key())
}
