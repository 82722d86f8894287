package storage

import (
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

const redisSettingsKey = "streambot:settings"

// RedisBackend keeps the document under one redis key
type RedisBackend struct {
	client *redis.Client
	key    string
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, key: redisSettingsKey}
}

func (b *RedisBackend) Load() ([]byte, error) {
	data, err := b.client.Get(b.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading settings from redis")
	}
	return data, nil
}

func (b *RedisBackend) Save(data []byte) error {
	return errors.Wrap(b.client.Set(b.key, data, 0).Err(), "saving settings to redis")
}
