package billing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ai_gateway/internal/models"
)

// PeriodBounds returns the half-open day and month windows containing now in loc
func PeriodBounds(now time.Time, loc *time.Location) (dayStart, dayEnd, monthStart, monthEnd time.Time) {
	local := now.In(loc)
	y, m, d := local.Date()
	dayStart = time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd = dayStart.AddDate(0, 0, 1)
	monthStart = time.Date(y, m, 1, 0, 0, 0, 0, loc)
	monthEnd = monthStart.AddDate(0, 1, 0)
	return
}

// LedgerTotals sums spend straight from the usage ledger
type LedgerTotals struct {
	ledger   Ledger
	location *time.Location
}

// NewLedgerTotals creates ledger-backed totals with periods anchored in loc
func NewLedgerTotals(ledger Ledger, loc *time.Location) *LedgerTotals {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerTotals{ledger: ledger, location: loc}
}

// Totals implements SpendTotals. Both windows run from the period start up to
// and including now at millisecond precision; rows stamped later are ignored.
func (t *LedgerTotals) Totals(ctx context.Context, deviceID string, now time.Time) (float64, float64, error) {
	dayStart, _, monthStart, _ := PeriodBounds(now, t.location)
	until := now.Truncate(time.Millisecond).Add(time.Millisecond)

	daily, err := t.ledger.SumCost(ctx, deviceID, dayStart, until)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum daily cost: %w", err)
	}
	monthly, err := t.ledger.SumCost(ctx, deviceID, monthStart, until)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum monthly cost: %w", err)
	}
	return daily, monthly, nil
}

const (
	dailyKeyTTL   = 48 * time.Hour
	monthlyKeyTTL = 62 * 24 * time.Hour
)

// addSpendScript increments the day and month counters together
var addSpendScript = redis.NewScript(`
	local cost = ARGV[1]
	local daily = redis.call('INCRBYFLOAT', KEYS[1], cost)
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
	local monthly = redis.call('INCRBYFLOAT', KEYS[2], cost)
	redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
	return {daily, monthly}
`)

// RedisSpendTracker keeps per-device day and month spend counters in Redis so
// preflight does not scan the ledger. Counters only see charges made while the
// tracker is wired in.
type RedisSpendTracker struct {
	client   *redis.Client
	location *time.Location
}

// NewRedisSpendTracker creates a tracker with periods anchored in loc
func NewRedisSpendTracker(client *redis.Client, loc *time.Location) *RedisSpendTracker {
	if loc == nil {
		loc = time.UTC
	}
	return &RedisSpendTracker{client: client, location: loc}
}

// Add implements SpendCounter
func (t *RedisSpendTracker) Add(ctx context.Context, deviceID string, costUSD float64, at time.Time) error {
	dailyKey, monthlyKey := t.keys(deviceID, at)
	cost := strconv.FormatFloat(costUSD, 'f', -1, 64)

	err := addSpendScript.Run(ctx, t.client, []string{dailyKey, monthlyKey},
		cost, int(dailyKeyTTL.Seconds()), int(monthlyKeyTTL.Seconds())).Err()
	if err != nil {
		return fmt.Errorf("failed to add spend: %w", err)
	}
	return nil
}

// Totals implements SpendTotals
func (t *RedisSpendTracker) Totals(ctx context.Context, deviceID string, now time.Time) (float64, float64, error) {
	dailyKey, monthlyKey := t.keys(deviceID, now)

	values, err := t.client.MGet(ctx, dailyKey, monthlyKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read spend counters: %w", err)
	}

	totals := make([]float64, 2)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid spend counter %q: %w", s, err)
		}
		totals[i] = f
	}
	return totals[0], totals[1], nil
}

// keys generates the Redis keys of the day and month counters
func (t *RedisSpendTracker) keys(deviceID string, at time.Time) (string, string) {
	local := at.In(t.location)
	return fmt.Sprintf("cost:%s:day:%s", deviceID, models.DailyPeriod(local)),
		fmt.Sprintf("cost:%s:month:%s", deviceID, models.MonthlyPeriod(local))
}
