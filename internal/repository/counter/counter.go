package counter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	keyDownloads = "docubeauty:dl" // HASH. entity_id -> download count
)

// CounterRepository keeps per-entity download counters in redis. Counters are
// statistics, not entitlement state; losing them is harmless.
type CounterRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewCounterRepository(cl *redis.Client, log *slog.Logger) *CounterRepository {
	return &CounterRepository{
		cl:  cl,
		log: log.With(slog.String("item", "CounterRepository")),
	}
}

// Inc atomically increments the counter for an entity id and returns the new
// value.
func (r *CounterRepository) Inc(ctx context.Context, id string) (int64, error) {
	n, err := r.cl.HIncrBy(ctx, keyDownloads, id, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("cannot increment download counter: %w", err)
	}

	return n, nil
}

// Get returns the counter for one entity id (0 when unseen).
func (r *CounterRepository) Get(ctx context.Context, id string) (int64, error) {
	n, err := r.cl.HGet(ctx, keyDownloads, id).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cannot get download counter: %w", err)
	}

	return n, nil
}

// All returns every known counter keyed by entity id.
func (r *CounterRepository) All(ctx context.Context) (map[string]int64, error) {
	raw, err := r.cl.HGetAll(ctx, keyDownloads).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get download counters: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for id, v := range raw {
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			r.log.Warn("Broken counter value", slog.String("id", id), slog.String("value", v))

			continue
		}
		out[id] = n
	}

	return out, nil
}
