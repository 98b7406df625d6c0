package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("redis: key not found")

const handoffPrefix = "handoff:"

type IRedis interface {
	SetHandoff(ctx context.Context, ticketID string, payload []byte, expiration time.Duration) error
	GetHandoff(ctx context.Context, ticketID string) ([]byte, error)
	DeleteHandoff(ctx context.Context, ticketID string) error
}

type redisClient struct {
	client redis.Cmdable
}

func New() IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

// NewFromClient wraps an existing client, e.g. one bound to a test server.
func NewFromClient(client redis.Cmdable) IRedis {
	return &redisClient{client: client}
}

func (r *redisClient) SetHandoff(ctx context.Context, ticketID string, payload []byte, expiration time.Duration) error {
	key := handoffPrefix + ticketID
	logrus.Debug(fmt.Sprintf("Setting handoff for key %s with expiration %v", key, expiration))
	err := r.client.Set(ctx, key, payload, expiration).Err()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error setting handoff for key %s: %v", key, err))
		return err
	}
	return nil
}

func (r *redisClient) GetHandoff(ctx context.Context, ticketID string) ([]byte, error) {
	key := handoffPrefix + ticketID
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Handoff not found for key %s", key))
		return nil, ErrNotFound
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error getting handoff for key %s: %v", key, err))
		return nil, err
	}
	return val, nil
}

func (r *redisClient) DeleteHandoff(ctx context.Context, ticketID string) error {
	key := handoffPrefix + ticketID
	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error deleting handoff for key %s: %v", key, err))
		return err
	}

	if result == 0 {
		logrus.Debug(fmt.Sprintf("Handoff key %s not found for deletion", key))
	}
	return nil
}
