package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	assert.False(t, c.GetJSON(ctx, "calndr:test:missing", &payload{}))

	in := payload{Name: "june", Count: 30}
	require.True(t, c.SetJSON(ctx, "calndr:test:k", in, time.Minute))

	var out payload
	require.True(t, c.GetJSON(ctx, "calndr:test:k", &out))
	assert.Equal(t, in, out)
	assert.True(t, c.Exists(ctx, "calndr:test:k"))
	assert.Greater(t, c.TTL(ctx, "calndr:test:k"), time.Duration(0))

	c.Delete(ctx, "calndr:test:k")
	assert.False(t, c.Exists(ctx, "calndr:test:k"))
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.True(t, c.SetJSON(ctx, "k", "v", time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	var out string
	assert.False(t, c.GetJSON(ctx, "k", &out))
	assert.False(t, c.Exists(ctx, "k"))
}

func TestMemoryDeletePattern(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	keys := []string{
		CustodyMonthKey("fam-1", Month{2024, time.June}),
		CustodyMonthKey("fam-1", Month{2024, time.July}),
		HandoffMonthKey("fam-1", Month{2024, time.June}),
		EventsRangeKey("fam-1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)),
		CustodyMonthKey("fam-2", Month{2024, time.June}),
	}
	for _, k := range keys {
		require.True(t, c.SetJSON(ctx, k, "x", 0))
	}

	n := c.DeletePattern(ctx, FamilyCustodyPattern("fam-1"))
	assert.Equal(t, 2, n)
	assert.False(t, c.Exists(ctx, keys[0]))
	assert.False(t, c.Exists(ctx, keys[1]))

	// Handoff, events and the other family survive.
	assert.True(t, c.Exists(ctx, keys[2]))
	assert.True(t, c.Exists(ctx, keys[3]))
	assert.True(t, c.Exists(ctx, keys[4]))
}

func TestInvalidateFamilyMonths(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	june := Month{2024, time.June}
	july := Month{2024, time.July}
	for _, k := range []string{
		CustodyMonthKey("fam-1", june), HandoffMonthKey("fam-1", june),
		CustodyMonthKey("fam-1", july), HandoffMonthKey("fam-1", july),
	} {
		require.True(t, c.SetJSON(ctx, k, "x", 0))
	}

	// Duplicate months collapse to one delete.
	InvalidateFamilyMonths(ctx, c, "fam-1", []Month{june, june}, false)

	assert.False(t, c.Exists(ctx, CustodyMonthKey("fam-1", june)))
	assert.False(t, c.Exists(ctx, HandoffMonthKey("fam-1", june)))
	assert.True(t, c.Exists(ctx, CustodyMonthKey("fam-1", july)))

	InvalidateFamilyMonths(ctx, c, "fam-1", nil, true)
	assert.False(t, c.Exists(ctx, CustodyMonthKey("fam-1", july)))
	assert.False(t, c.Exists(ctx, HandoffMonthKey("fam-1", july)))
}

func TestKeyShapes(t *testing.T) {
	assert.Equal(t, "calndr:custody_opt:family:f:2024:06",
		CustodyMonthKey("f", Month{2024, time.June}))
	assert.Equal(t, "calndr:handoff_only:family:f:2024:06",
		HandoffMonthKey("f", Month{2024, time.June}))
	assert.Equal(t, "calndr:events:family:f:2024-06-01:2024-06-30",
		EventsRangeKey("f",
			time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)))
}
