package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/barrierbot/internal/domain"
)

// FormStore implements domain.FormStore with one string key per chat.
type FormStore struct {
	rdb *redis.Client
}

// NewFormStore creates a FormStore backed by the given Client.
func NewFormStore(c *Client) *FormStore {
	return &FormStore{rdb: c.Underlying()}
}

func formKey(ownerChat string) string {
	return "form:" + ownerChat
}

// Save writes the serialized form and refreshes its expiry.
func (fs *FormStore) Save(ctx context.Context, ownerChat string, data []byte, ttl time.Duration) error {
	if err := fs.rdb.Set(ctx, formKey(ownerChat), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save form %s: %w", ownerChat, err)
	}
	return nil
}

// Load returns the serialized form or domain.ErrNotFound.
func (fs *FormStore) Load(ctx context.Context, ownerChat string) ([]byte, error) {
	data, err := fs.rdb.Get(ctx, formKey(ownerChat)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: load form %s: %w", ownerChat, err)
	}
	return data, nil
}

// Delete removes the form. Deleting a missing form is not an error.
func (fs *FormStore) Delete(ctx context.Context, ownerChat string) error {
	if err := fs.rdb.Del(ctx, formKey(ownerChat)).Err(); err != nil {
		return fmt.Errorf("redis: delete form %s: %w", ownerChat, err)
	}
	return nil
}

var _ domain.FormStore = (*FormStore)(nil)
