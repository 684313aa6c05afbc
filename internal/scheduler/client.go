package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	inboundMaxRetry  = 5
	inboundTimeout   = 2 * time.Minute
	transferMaxRetry = 3
)

// Client enqueues pipeline work for the worker process.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueInbound queues one inbound event under its event id. A redelivered
// event whose task is still known to the queue is accepted without a second task.
func (c *Client) EnqueueInbound(ctx context.Context, eventID string, payload []byte) error {
	_, err := c.client.EnqueueContext(ctx, NewConversationInboundTask(payload),
		asynq.TaskID(inboundTaskID(eventID)),
		asynq.Queue(c.queue),
		asynq.MaxRetry(inboundMaxRetry),
		asynq.Timeout(inboundTimeout),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	if err != nil {
		return apperr.Transient("enqueue inbound event", err)
	}
	return nil
}

// EnqueueTransferResume queues a resume of a stored transfer after delay.
// Only one resume per transfer is queued at a time.
func (c *Client) EnqueueTransferResume(ctx context.Context, transferID string, delay time.Duration) error {
	task, err := NewTransferResumeTask(TransferResumePayload{TransferID: transferID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.TaskID(transferTaskID(transferID)),
		asynq.Queue(c.queue),
		asynq.MaxRetry(transferMaxRetry),
		asynq.ProcessIn(delay),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// NewRedisClient opens the go-redis client used for locks and dedupe.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	opt, err := parseRedisURL(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

func parseRedisURL(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opt, nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := parseRedisURL(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
