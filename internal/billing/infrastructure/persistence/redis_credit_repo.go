package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
)

const (
	// DefaultRedisPrefix namespaces every credit key.
	DefaultRedisPrefix = "birvanoio:credits"

	periodDateLayout = "2006-01-02"
)

// Debit script result codes.
const (
	redisDebitMissing      = -1
	redisDebitInsufficient = 0
	redisDebitApplied      = 1
	redisDebitDuplicate    = 2
)

// KEYS: period hash, charge hash, usage list.
// ARGV: cost, timestamp, action, count, usage entries...
var debitScript = redis.NewScript(`
local prior = redis.call('HGET', KEYS[2], 'consumed_after')
if prior then
  return {2, tonumber(prior)}
end
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1, 0}
end
local allowance = tonumber(redis.call('HGET', KEYS[1], 'allowance'))
local bonus = tonumber(redis.call('HGET', KEYS[1], 'bonus'))
local consumed = tonumber(redis.call('HGET', KEYS[1], 'consumed'))
local cost = tonumber(ARGV[1])
if allowance >= 0 and allowance + bonus - consumed < cost then
  return {0, consumed}
end
consumed = redis.call('HINCRBY', KEYS[1], 'consumed', cost)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
redis.call('HSET', KEYS[2], 'consumed_after', consumed, 'action', ARGV[3], 'unit_count', ARGV[4], 'cost', cost, 'created_at', ARGV[2])
for i = 5, #ARGV do
  redis.call('RPUSH', KEYS[3], ARGV[i])
end
return {1, consumed}
`)

// KEYS: period hash, period index. ARGV: tier, allowance, bonus, timestamp, score, member.
var openPeriodScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1], 'tier', ARGV[1], 'allowance', ARGV[2], 'consumed', 0, 'bonus', ARGV[3], 'created_at', ARGV[4], 'updated_at', ARGV[4])
  redis.call('ZADD', KEYS[2], ARGV[5], ARGV[6])
end
return 1
`)

// KEYS: period hash. ARGV: credits, timestamp.
var grantBonusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'bonus', ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 1
`)

// KEYS: period hash. ARGV: tier, allowance, timestamp.
var setTierScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'tier', ARGV[1], 'allowance', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

// RedisCreditRepository keeps credit periods in Redis hashes and performs the
// conditional debit in a Lua script. Keys for one user share a hash tag so
// the scripts stay on one cluster slot.
type RedisCreditRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCreditRepository creates a Redis-backed credit store.
func NewRedisCreditRepository(client redis.UniversalClient, prefix string) *RedisCreditRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCreditRepository{client: client, prefix: prefix}
}

func (r *RedisCreditRepository) userPrefix(userID uuid.UUID) string {
	return fmt.Sprintf("%s:{%s}", r.prefix, userID)
}

func (r *RedisCreditRepository) periodKey(userID uuid.UUID, start time.Time) string {
	return r.userPrefix(userID) + ":period:" + start.Format(periodDateLayout)
}

func (r *RedisCreditRepository) indexKey(userID uuid.UUID) string {
	return r.userPrefix(userID) + ":periods"
}

func (r *RedisCreditRepository) chargeKey(userID uuid.UUID, referenceID string) string {
	return r.userPrefix(userID) + ":charge:" + referenceID
}

func (r *RedisCreditRepository) usageKey(userID uuid.UUID, start time.Time) string {
	return r.userPrefix(userID) + ":usage:" + start.Format(periodDateLayout)
}

func (r *RedisCreditRepository) FindPeriod(ctx context.Context, userID uuid.UUID, start time.Time) (*domain.CreditPeriod, error) {
	start = domain.PeriodStart(start)
	fields, err := r.client.HGetAll(ctx, r.periodKey(userID, start)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return periodFromHash(userID, start, fields)
}

func (r *RedisCreditRepository) EnsurePeriod(ctx context.Context, userID uuid.UUID, start time.Time, tier domain.Tier) (*domain.CreditPeriod, error) {
	start = domain.PeriodStart(start)
	existing, err := r.FindPeriod(ctx, userID, start)
	if err != nil || existing != nil {
		return existing, err
	}

	previous, err := r.previousPeriod(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	period, err := domain.NewCreditPeriod(userID, start, tier, previous)
	if err != nil {
		return nil, err
	}

	err = openPeriodScript.Run(ctx, r.client,
		[]string{r.periodKey(userID, start), r.indexKey(userID)},
		string(period.Tier),
		period.Allowance.Stored(),
		period.Bonus,
		period.CreatedAt.Format(time.RFC3339Nano),
		start.Unix(),
		start.Format(periodDateLayout),
	).Err()
	if err != nil {
		return nil, fmt.Errorf("open credit period: %w", err)
	}
	return r.FindPeriod(ctx, userID, start)
}

func (r *RedisCreditRepository) previousPeriod(ctx context.Context, userID uuid.UUID, start time.Time) (*domain.CreditPeriod, error) {
	members, err := r.client.ZRevRangeByScore(ctx, r.indexKey(userID), &redis.ZRangeBy{
		Max:   "(" + strconv.FormatInt(start.Unix(), 10),
		Min:   "-inf",
		Count: 1,
	}).Result()
	if err != nil || len(members) == 0 {
		return nil, err
	}
	prevStart, err := time.Parse(periodDateLayout, members[0])
	if err != nil {
		return nil, err
	}
	return r.FindPeriod(ctx, userID, prevStart)
}

func (r *RedisCreditRepository) Debit(ctx context.Context, debit domain.Debit) (domain.DebitOutcome, error) {
	if err := domain.ValidCount(debit.Count); err != nil {
		return domain.DebitOutcome{}, err
	}
	if debit.ReferenceID == "" {
		debit.ReferenceID = uuid.NewString()
	}
	if debit.At.IsZero() {
		debit.At = time.Now().UTC()
	}
	debit.PeriodStart = domain.PeriodStart(debit.PeriodStart)

	args := []any{debit.Cost(), debit.At.Format(time.RFC3339Nano), string(debit.Action), debit.Count}
	for _, entry := range debit.UsageEntries() {
		data, err := json.Marshal(entry)
		if err != nil {
			return domain.DebitOutcome{}, err
		}
		args = append(args, string(data))
	}

	res, err := debitScript.Run(ctx, r.client, []string{
		r.periodKey(debit.UserID, debit.PeriodStart),
		r.chargeKey(debit.UserID, debit.ReferenceID),
		r.usageKey(debit.UserID, debit.PeriodStart),
	}, args...).Int64Slice()
	if err != nil {
		return domain.DebitOutcome{}, err
	}
	if len(res) != 2 {
		return domain.DebitOutcome{}, fmt.Errorf("unexpected debit script reply %v", res)
	}

	switch res[0] {
	case redisDebitApplied:
		return domain.DebitOutcome{Status: domain.DebitApplied, Consumed: res[1]}, nil
	case redisDebitDuplicate:
		return domain.DebitOutcome{Status: domain.DebitDuplicate, Consumed: res[1]}, nil
	case redisDebitInsufficient:
		return domain.DebitOutcome{Status: domain.DebitInsufficient, Consumed: res[1]}, nil
	case redisDebitMissing:
		return domain.DebitOutcome{}, domain.ErrPeriodNotFound
	default:
		return domain.DebitOutcome{}, fmt.Errorf("unexpected debit status %d", res[0])
	}
}

func (r *RedisCreditRepository) GrantBonus(ctx context.Context, userID uuid.UUID, start time.Time, credits int64) (*domain.CreditPeriod, error) {
	if credits <= 0 {
		return nil, domain.ErrInvalidCredits
	}
	start = domain.PeriodStart(start)
	ok, err := grantBonusScript.Run(ctx, r.client, []string{r.periodKey(userID, start)},
		credits, time.Now().UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, domain.ErrPeriodNotFound
	}
	return r.FindPeriod(ctx, userID, start)
}

func (r *RedisCreditRepository) SetPeriodTier(ctx context.Context, userID uuid.UUID, start time.Time, tier domain.Tier) (*domain.CreditPeriod, error) {
	allowance, err := domain.AllowanceFor(tier)
	if err != nil {
		return nil, err
	}
	start = domain.PeriodStart(start)
	ok, err := setTierScript.Run(ctx, r.client, []string{r.periodKey(userID, start)},
		string(tier), allowance.Stored(), time.Now().UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return nil, err
	}
	if ok == 0 {
		return nil, domain.ErrPeriodNotFound
	}
	return r.FindPeriod(ctx, userID, start)
}

func (r *RedisCreditRepository) ListUsage(ctx context.Context, userID uuid.UUID, start time.Time) ([]domain.UsageEntry, error) {
	raw, err := r.client.LRange(ctx, r.usageKey(userID, domain.PeriodStart(start)), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.UsageEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.UsageEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ping checks connectivity for health reporting.
func (r *RedisCreditRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var errMalformedPeriod = errors.New("malformed credit period hash")

func periodFromHash(userID uuid.UUID, start time.Time, fields map[string]string) (*domain.CreditPeriod, error) {
	intField := func(name string) (int64, error) {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", errMalformedPeriod, name, err)
		}
		return v, nil
	}

	allowance, err := intField("allowance")
	if err != nil {
		return nil, err
	}
	consumed, err := intField("consumed")
	if err != nil {
		return nil, err
	}
	bonus, err := intField("bonus")
	if err != nil {
		return nil, err
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, fields["created_at"])
	updatedAt, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])

	return &domain.CreditPeriod{
		UserID:      userID,
		PeriodStart: start,
		Tier:        domain.Tier(fields["tier"]),
		Allowance:   domain.AllowanceFromStored(allowance),
		Consumed:    consumed,
		Bonus:       bonus,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

var _ domain.CreditRepository = (*RedisCreditRepository)(nil)
