package id

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAscendingIsMonotonic(t *testing.T) {
	const n = 1000
	ids := make([]string, n)
	for i := range ids {
		ids[i] = Ascending(Message)
	}

	assert.True(t, sort.StringsAreSorted(ids), "ids must sort in mint order")
	for i := 1; i < n; i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestAscendingConcurrent(t *testing.T) {
	const n = 200
	ch := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() { ch <- Ascending(Part) }()
	}

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := <-ch
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	s := Ascending(ToolOutput)
	after := time.Now()

	ts, err := Timestamp(s)
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(after))
}

func TestTimestampRejectsGarbage(t *testing.T) {
	_, err := Timestamp("no-separator")
	assert.Error(t, err)
	_, err = Timestamp("tix_notaulid")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	s := Ascending(Session)
	assert.True(t, Valid(Session, s))
	assert.False(t, Valid(Message, s))
	assert.False(t, Valid(Session, "ses_xyz"))
}
