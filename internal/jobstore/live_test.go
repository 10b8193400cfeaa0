package jobstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need real backends and skip when none is reachable.

func TestRedisStore_Live(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	t.Cleanup(func() { rdb.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	s := NewRedisStore(rdb)
	exerciseStore(t, s)

	job := completedJob()
	job.TTL = time.Now().Add(time.Hour).Truncate(time.Second).UTC()
	require.NoError(t, s.Create(context.Background(), job))
	got, err := s.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job, got)

	ttl, err := rdb.TTL(context.Background(), jobKey(job.JobID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestPostgresStore_Live(t *testing.T) {
	dsn := os.Getenv("AUTOVID_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AUTOVID_TEST_POSTGRES_DSN not set")
	}
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	_, err = db.Exec(`DELETE FROM jobs`)
	require.NoError(t, err)

	exerciseStore(t, s)

	job := completedJob()
	job.JobID = "c0ffee00-0000-4000-8000-000000000002"
	require.NoError(t, s.Create(context.Background(), job))
	s.now = func() time.Time { return job.TTL.Add(time.Second) }
	_, err = s.Get(context.Background(), job.JobID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	n, err := s.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
}
