package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue keeps, per job type, a sorted set of dedup keys scored by due
// time, a hash of job bodies, a hash of lease tokens and a dead-letter list.
// A claimed job stays in the sorted set with its score pushed out by the
// visibility timeout, so a crashed worker's job is redelivered. Each expired
// lease counts as a failed attempt, kept in a separate hash until the job is
// acked, retried or re-armed.
type RedisQueue struct {
	client     redis.UniversalClient
	prefix     string
	visibility time.Duration
	now        func() time.Time
}

// RedisQueueOptions configures a RedisQueue.
type RedisQueueOptions struct {
	Prefix            string
	VisibilityTimeout time.Duration
	Now               func() time.Time
}

// NewRedisQueue builds the queue.
func NewRedisQueue(client redis.UniversalClient, opts RedisQueueOptions) *RedisQueue {
	if opts.Prefix == "" {
		opts.Prefix = "queue-service"
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedisQueue{
		client:     client,
		prefix:     opts.Prefix,
		visibility: opts.VisibilityTimeout,
		now:        opts.Now,
	}
}

type keys struct {
	delayed, data, lease, expired, dead string
}

func (q *RedisQueue) keys(jobType string) keys {
	base := fmt.Sprintf("%s:jobs:%s", q.prefix, jobType)
	return keys{
		delayed: base + ":delayed",
		data:    base + ":data",
		lease:   base + ":lease",
		expired: base + ":expired",
		dead:    base + ":dead",
	}
}

// Schedule writes the body and due time in one transaction. Dropping the
// lease makes a concurrent ack of the previous run a no-op.
func (q *RedisQueue) Schedule(ctx context.Context, jobType string, payload any, delay time.Duration, dedupKey string, policy RetryPolicy) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	body, err := json.Marshal(Job{Payload: raw, Policy: policy})
	if err != nil {
		return err
	}
	if delay < 0 {
		delay = 0
	}
	k := q.keys(jobType)
	due := q.now().Add(delay).UnixMilli()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k.data, dedupKey, body)
		pipe.ZAdd(ctx, k.delayed, redis.Z{Score: float64(due), Member: dedupKey})
		pipe.HDel(ctx, k.lease, dedupKey)
		pipe.HDel(ctx, k.expired, dedupKey)
		return nil
	})
	return err
}

var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
local body = redis.call('HGET', KEYS[2], id)
if not body then
  redis.call('ZREM', KEYS[1], id)
  redis.call('HDEL', KEYS[3], id)
  redis.call('HDEL', KEYS[4], id)
  return false
end
local expired
if redis.call('HEXISTS', KEYS[3], id) == 1 then
  expired = redis.call('HINCRBY', KEYS[4], id, 1)
else
  expired = tonumber(redis.call('HGET', KEYS[4], id) or '0')
end
redis.call('ZADD', KEYS[1], ARGV[2], id)
redis.call('HSET', KEYS[3], id, ARGV[3])
return {id, body, tostring(expired)}
`)

// Claim leases the earliest due job of a type. It returns nil when nothing
// is due. A job whose expired leases exhaust its policy is moved to the
// dead-letter list instead of being handed out again.
func (q *RedisQueue) Claim(ctx context.Context, jobType string) (*Job, error) {
	k := q.keys(jobType)
	for {
		now := q.now()
		token := uuid.NewString()
		res, err := claimScript.Run(ctx, q.client,
			[]string{k.delayed, k.data, k.lease, k.expired},
			now.UnixMilli(), now.Add(q.visibility).UnixMilli(), token,
		).StringSlice()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if len(res) != 3 {
			return nil, fmt.Errorf("claim %s: unexpected reply %v", jobType, res)
		}
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return nil, fmt.Errorf("decode %s job %s: %w", jobType, res[0], err)
		}
		expired, err := strconv.Atoi(res[2])
		if err != nil {
			return nil, fmt.Errorf("claim %s: bad lease count %q", jobType, res[2])
		}
		job.Key = res[0]
		job.Type = jobType
		job.token = token
		if expired == 0 {
			return &job, nil
		}
		job.Attempts += expired
		job.LastErr = errLeaseExpired.Error()
		if job.Attempts < job.Policy.MaxAttempts {
			return &job, nil
		}
		if _, err := q.settle(ctx, &job, now, true); err != nil {
			return nil, err
		}
	}
}

var ackScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

// Ack removes a finished job. It is a no-op when the job was re-armed or
// its lease expired and another worker claimed it.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	k := q.keys(job.Type)
	return ackScript.Run(ctx, q.client, []string{k.delayed, k.data, k.lease, k.expired}, job.Key, job.token).Err()
}

var retryScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
  return -1
end
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[5], ARGV[1])
if ARGV[5] == '1' then
  redis.call('ZREM', KEYS[1], ARGV[1])
  redis.call('HDEL', KEYS[2], ARGV[1])
  redis.call('RPUSH', KEYS[4], ARGV[3])
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
return 1
`)

// Retry records a failed attempt. The job is rescheduled with backoff until
// its policy is exhausted, then moved to the dead-letter list. dead reports
// the latter.
func (q *RedisQueue) Retry(ctx context.Context, job *Job, cause error) (dead bool, err error) {
	job.Attempts++
	if cause != nil {
		job.LastErr = cause.Error()
	}
	return q.settle(ctx, job, q.now(), job.Attempts >= job.Policy.MaxAttempts)
}

// settle writes back a failed attempt under the caller's lease: either the
// job is rescheduled with backoff or it is moved to the dead-letter list.
func (q *RedisQueue) settle(ctx context.Context, job *Job, now time.Time, dead bool) (bool, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	due := now.Add(job.Policy.NextDelay(job.Attempts)).UnixMilli()
	flag := "0"
	if dead {
		flag = "1"
	}
	k := q.keys(job.Type)
	res, err := retryScript.Run(ctx, q.client,
		[]string{k.delayed, k.data, k.lease, k.dead, k.expired},
		job.Key, job.token, body, due, flag,
	).Int()
	if err != nil {
		return false, err
	}
	return res == 0, nil
}

// Pending reports the number of scheduled jobs of a type, leased ones included.
func (q *RedisQueue) Pending(ctx context.Context, jobType string) (int64, error) {
	return q.client.ZCard(ctx, q.keys(jobType).delayed).Result()
}

// DueAt returns when the job under dedupKey is next due.
func (q *RedisQueue) DueAt(ctx context.Context, jobType, dedupKey string) (time.Time, bool, error) {
	score, err := q.client.ZScore(ctx, q.keys(jobType).delayed, dedupKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(int64(score)), true, nil
}

// Dead returns abandoned job bodies.
func (q *RedisQueue) Dead(ctx context.Context, jobType string) ([]Job, error) {
	raw, err := q.client.LRange(ctx, q.keys(jobType).dead, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(raw))
	for _, r := range raw {
		var job Job
		if err := json.Unmarshal([]byte(r), &job); err != nil {
			return nil, err
		}
		job.Type = jobType
		out = append(out, job)
	}
	return out, nil
}

// Ping verifies connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
