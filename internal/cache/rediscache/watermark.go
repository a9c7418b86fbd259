package rediscache

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Watermark keeps the email monitor's last processed UID in Redis so
// messages are not reprocessed after a restart. The value only grows.
type Watermark struct {
	c   *redis.Client
	key string
}

func NewWatermark(addr, key string) *Watermark {
	if key == "" {
		key = "email:last_uid"
	}
	return &Watermark{
		c:   redis.NewClient(&redis.Options{Addr: addr}),
		key: key,
	}
}

func (w *Watermark) Load(ctx context.Context) (uint32, bool, error) {
	val, err := w.c.Get(ctx, w.key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "redis get watermark")
	}
	n, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, false, errors.Wrap(err, "parse watermark")
	}
	return uint32(n), true, nil
}

func (w *Watermark) Store(ctx context.Context, uid uint32) error {
	if err := w.c.Set(ctx, w.key, strconv.FormatUint(uint64(uid), 10), 0).Err(); err != nil {
		return errors.Wrap(err, "redis set watermark")
	}
	return nil
}
