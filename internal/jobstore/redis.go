package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ossamaweb/auto-vid/internal/model"
)

const keyPrefix = "job:"

// updateScript applies an update only when the record still exists, so a
// late write never resurrects an expired job without its TTL.
// ARGV: n, then n field/value pairs, then fields to delete.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
local n = tonumber(ARGV[1])
for i = 2, 2 * n, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
for i = 2 * n + 2, #ARGV do
	redis.call('HDEL', KEYS[1], ARGV[i])
end
return 1
`)

// RedisStore keeps each job as a hash under job:<id> with a native expiry.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func jobKey(jobID string) string {
	return keyPrefix + jobID
}

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	key := jobKey(job.JobID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeJob(job))
		if !job.TTL.IsZero() {
			pipe.ExpireAt(ctx, key, job.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, jobID string, u model.JobUpdate) error {
	set, del := encodeUpdate(u)
	args := make([]any, 0, 1+2*len(set)+len(del))
	args = append(args, len(set))
	for k, v := range set {
		args = append(args, k, v)
	}
	for _, k := range del {
		args = append(args, k)
	}

	n, err := updateScript.Run(ctx, s.rdb, []string{jobKey(jobID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJob(fields)
}
