package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	jobsIndexKey     = "jobs"
	maxUpdateRetries = 10
)

// RedisStore keeps job:<id> => JSON(Job) with a key TTL of the retention window,
// plus a "jobs" sorted set scored by creation time for listing and sweeps.
type RedisStore struct {
	client *redis.Client
	exp    expiry
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func NewRedisStore(ctx context.Context, client *redis.Client, retention time.Duration, now func() time.Time) (*RedisStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, exp: newExpiry(retention, now)}, nil
}

func (r *RedisStore) jobKey(id string) string { return fmt.Sprintf("job:%s", id) }

func (r *RedisStore) Create(ctx context.Context, job *Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.jobKey(job.ID), b, r.exp.retention).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return r.client.ZAdd(ctx, jobsIndexKey, redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID}).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	j, err := r.get(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	if r.exp.expired(j) {
		return nil, ErrNotFound
	}
	return j, nil
}

// Update retries the optimistic transaction when another writer touched the key.
func (r *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Job, error) {
	key := r.jobKey(id)
	var out *Job
	txf := func(tx *redis.Tx) error {
		j, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.exp.expired(j) {
			return ErrNotFound
		}
		if err = fn(j); err != nil {
			return err
		}
		j.ID = id
		j.UpdatedAt = r.exp.now()
		b, err := json.Marshal(j)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, redis.KeepTTL)
			return nil
		})
		if err == nil {
			out = j
		}
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update job %s: too much contention", id)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.jobKey(id))
	pipe.ZRem(ctx, jobsIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) ListByStatus(ctx context.Context, status Status) ([]*Job, error) {
	jobs, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0)
	for _, j := range jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r *RedisStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, jobsIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err = r.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (r *RedisStore) Stats(ctx context.Context) (Stats, error) {
	jobs, err := r.all(ctx)
	if err != nil {
		return Stats{}, err
	}
	var st Stats
	for _, j := range jobs {
		st.add(j.Status)
	}
	return st, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// all returns live jobs in creation order. Index entries whose key has
// already expired are skipped.
func (r *RedisStore) all(ctx context.Context) ([]*Job, error) {
	ids, err := r.client.ZRange(ctx, jobsIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		j, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) get(ctx context.Context, c stringGetter, id string) (*Job, error) {
	val, err := c.Get(ctx, r.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var j Job
	if err = json.Unmarshal(val, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
