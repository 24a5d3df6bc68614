// Package cache coordinates the keyed read-through cache in front of the
// relational store. Every operation is best-effort: an unreachable or slow
// cache degrades to misses and no-ops, never to request failures.
package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	// TTL policy for the core key families.
	TTLCustodyCurrent = 30 * time.Minute
	TTLCustodyPast    = 4 * time.Hour
	TTLHandoffOnly    = time.Hour
	TTLEvents         = 15 * time.Minute

	namespace = "calndr"
)

type Cache interface {
	// GetJSON decodes the value at key into dest. False means miss; a value
	// that fails to decode is deleted and reported as a miss.
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) bool
	Delete(ctx context.Context, keys ...string) bool
	// DeletePattern removes keys matching a glob pattern and returns how
	// many were deleted.
	DeletePattern(ctx context.Context, pattern string) int
	Exists(ctx context.Context, key string) bool
	TTL(ctx context.Context, key string) time.Duration
	Close() error
}

// Month identifies a (year, month) pair a mutation touched.
type Month struct {
	Year  int
	Month time.Month
}

func MonthOf(d time.Time) Month {
	return Month{Year: d.Year(), Month: d.Month()}
}

func CustodyMonthKey(familyID string, m Month) string {
	return fmt.Sprintf("%s:custody_opt:family:%s:%04d:%02d", namespace, familyID, m.Year, int(m.Month))
}

func HandoffMonthKey(familyID string, m Month) string {
	return fmt.Sprintf("%s:handoff_only:family:%s:%04d:%02d", namespace, familyID, m.Year, int(m.Month))
}

func EventsRangeKey(familyID string, start, end time.Time) string {
	return fmt.Sprintf("%s:events:family:%s:%s:%s", namespace, familyID,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
}

func FamilyCustodyPattern(familyID string) string {
	return fmt.Sprintf("%s:custody*:family:%s:*", namespace, familyID)
}

func FamilyHandoffPattern(familyID string) string {
	return fmt.Sprintf("%s:handoff_only:family:%s:*", namespace, familyID)
}

func FamilyEventsPattern(familyID string) string {
	return fmt.Sprintf("%s:events:family:%s:*", namespace, familyID)
}

// InvalidateFamilyMonths is the single invalidation choke point every
// mutation site calls after commit: it drops the month-scoped custody and
// handoff keys for each touched month, and optionally the family-wide
// custody pattern as a fallback.
func InvalidateFamilyMonths(ctx context.Context, c Cache, familyID string, months []Month, withPattern bool) {
	seen := make(map[Month]bool, len(months))
	for _, m := range months {
		if seen[m] {
			continue
		}
		seen[m] = true
		c.Delete(ctx, CustodyMonthKey(familyID, m), HandoffMonthKey(familyID, m))
	}
	if withPattern {
		c.DeletePattern(ctx, FamilyCustodyPattern(familyID))
		c.DeletePattern(ctx, FamilyHandoffPattern(familyID))
	}
}
