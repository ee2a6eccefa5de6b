package runstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func stateKey(runID string) string {
	return fmt.Sprintf("gasrun:run:%s:state", runID)
}

func dateKey(date string) string {
	return fmt.Sprintf("gasrun:date:%s:runs", date)
}

const allRunsKey = "gasrun:runs"

// SetRunState stores s and indexes it under its delivery date.
func (r *RedisStore) SetRunState(ctx context.Context, s *RunState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, stateKey(s.RunID), data, 0)
	pipe.SAdd(ctx, dateKey(s.DeliveryDate), s.RunID)
	pipe.SAdd(ctx, allRunsKey, s.RunID)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRunState returns nil, nil on a cache miss.
func (r *RedisStore) GetRunState(ctx context.Context, runID string) (*RunState, error) {
	data, err := r.client.Get(ctx, stateKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s RunState
	return &s, json.Unmarshal(data, &s)
}

func (r *RedisStore) DateRunIDs(ctx context.Context, date string) ([]string, error) {
	return r.client.SMembers(ctx, dateKey(date)).Result()
}

func (r *RedisStore) RemoveRun(ctx context.Context, runID, date string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, stateKey(runID))
	if date != "" {
		pipe.SRem(ctx, dateKey(date), runID)
	}
	pipe.SRem(ctx, allRunsKey, runID)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) FlushAll(ctx context.Context) error {
	ids, err := r.client.SMembers(ctx, allRunsKey).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		s, err := r.GetRunState(ctx, id)
		date := ""
		if err == nil && s != nil {
			date = s.DeliveryDate
		}
		r.RemoveRun(ctx, id, date)
	}
	return r.client.Del(ctx, allRunsKey).Err()
}
