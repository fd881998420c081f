package jobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// lockKeyPrefix namespaces job-id locks in whatever Redis keyspace the
// dispatcher's broader deployment shares.
const lockKeyPrefix = "plastron:job-lock:"

// Locker is an optional distributed mutex over job ids, so that two
// dispatcher instances sharing a jobs root directory (e.g. mounted on a
// network filesystem) cannot both create the same job id at once; Store
// holds it only while CreateJob creates the job directory. A nil
// *Locker always succeeds, so a single-instance deployment need not
// configure Redis at all.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker builds a Locker against an already-constructed redis.Client.
// ttl bounds how long a lock survives if its holder crashes without
// releasing it.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Lease is a held lock; Release must be called to give it up early.
type Lease struct {
	locker *Locker
	jobID  string
	token  string
}

// Acquire attempts to take the lock for jobID, failing immediately
// (ok == false) if another holder has it.
func (l *Locker) Acquire(ctx context.Context, jobID string) (*Lease, bool, error) {
	if l == nil {
		return &Lease{}, true, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKeyPrefix+jobID, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{locker: l, jobID: jobID, token: token}, true, nil
}

// releaseScript only deletes the key if it still holds this lease's token,
// so a lease that outlived its TTL cannot release a newer holder's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end`

// Release gives up the lease, if it is still held by this token.
func (lease *Lease) Release(ctx context.Context) error {
	if lease == nil || lease.locker == nil {
		return nil
	}
	res, err := lease.locker.client.Eval(ctx, releaseScript, []string{lockKeyPrefix + lease.jobID}, lease.token).Result()
	if err != nil {
		return err
	}
	if n, ok := res.(int64); ok && n == 0 {
		return fmt.Errorf("lease for job %q was not held (expired or stolen)", lease.jobID)
	}
	return nil
}
