package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const casMaxRetries = 4

// RemoteStore keeps topics as Redis hashes and scalar entries as plain
// string keys. Connection level failures are wrapped in a *TransportError.
type RemoteStore struct {
	client redis.UniversalClient
}

// NewRemoteStore wraps an existing client. The caller owns the client.
func NewRemoteStore(client redis.UniversalClient) *RemoteStore {
	return &RemoteStore{client: client}
}

// Ping checks that the server answers.
func (r *RemoteStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func (r *RemoteStore) Put(ctx context.Context, topic string, fields map[string]string, ttl time.Duration) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, topic)
		if len(fields) == 0 {
			return nil
		}
		pipe.HSet(ctx, topic, flatten(fields)...)
		if ttl > 0 {
			pipe.Expire(ctx, topic, ttl)
		}
		return nil
	})
	if err != nil {
		return wrapErr("put", err)
	}
	return nil
}

// Restore merges fields into topic and, for a positive ttl, sets its expiry.
// Fields already held by the server that are not in fields are kept, and
// so is an existing expiry when ttl is zero.
func (r *RemoteStore) Restore(ctx context.Context, topic string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, topic, flatten(fields)...)
		if ttl > 0 {
			pipe.Expire(ctx, topic, ttl)
		}
		return nil
	})
	if err != nil {
		return wrapErr("restore", err)
	}
	return nil
}

func (r *RemoteStore) Get(ctx context.Context, topic string) (map[string]string, bool, error) {
	fields, err := r.client.HGetAll(ctx, topic).Result()
	if err != nil {
		return nil, false, wrapErr("get", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	return fields, true, nil
}

func (r *RemoteStore) GetField(ctx context.Context, topic, field string) (string, bool, error) {
	v, err := r.client.HGet(ctx, topic, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("get field", err)
	}
	return v, true, nil
}

func (r *RemoteStore) GetFields(ctx context.Context, topic string, fields ...string) ([]string, bool, error) {
	var (
		exists *redis.IntCmd
		values *redis.SliceCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		exists = pipe.Exists(ctx, topic)
		if len(fields) > 0 {
			values = pipe.HMGet(ctx, topic, fields...)
		}
		return nil
	})
	if err != nil {
		return nil, false, wrapErr("get fields", err)
	}
	if exists.Val() == 0 {
		return nil, false, nil
	}

	out := make([]string, 0, len(fields))
	if values == nil {
		return out, true, nil
	}
	for _, v := range values.Val() {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, true, nil
}

func (r *RemoteStore) Merge(ctx context.Context, topic string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, topic, flatten(fields)...).Err(); err != nil {
		return wrapErr("merge", err)
	}
	return nil
}

func (r *RemoteStore) Remove(ctx context.Context, topic string, keys ...string) error {
	var err error
	if len(keys) == 0 {
		err = r.client.Del(ctx, topic).Err()
	} else {
		err = r.client.HDel(ctx, topic, keys...).Err()
	}
	if err != nil {
		return wrapErr("remove", err)
	}
	return nil
}

func (r *RemoteStore) SetIfAbsent(ctx context.Context, topic, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, topic, value, ttl).Result()
	if err != nil {
		return false, wrapErr("set if absent", err)
	}
	return ok, nil
}

func (r *RemoteStore) CompareAndSwapField(ctx context.Context, topic, field, old, next string) (bool, error) {
	for range casMaxRetries {
		var swapped bool
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.HGet(ctx, topic, field).Result()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}
			if cur != old {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, topic, field, next)
				return nil
			})
			if err != nil {
				return err
			}
			swapped = true
			return nil
		}, topic)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, wrapErr("compare and swap", err)
		}
		return swapped, nil
	}

	// Lost every race: someone else keeps changing the topic.
	return false, nil
}

// wrapErr keeps server replies (WRONGTYPE and friends) and caller
// cancellation as plain errors; anything else means the server is unreachable.
func wrapErr(op string, err error) error {
	var reply redis.Error
	if errors.As(err, &reply) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("kv: remote %s: %w", op, err)
	}
	return &TransportError{Op: op, Err: err}
}

func flatten(fields map[string]string) []any {
	out := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
