package app

import (
	"context"
	"errors"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessChecks returns the db and redis readiness checks. A nil pool
// fails readiness; a nil redis pinger means the sink is disabled and yields a
// nil check, which the readiness handler skips.
func BuildReadinessChecks(pool Pinger, redis Pinger) (dbCheck, redisCheck func(ctx context.Context) error) {
	dbCheck = func(ctx context.Context) error {
		if pool == nil {
			return errors.New("db not configured")
		}
		return pool.Ping(ctx)
	}
	if redis != nil {
		redisCheck = redis.Ping
	}
	return dbCheck, redisCheck
}
