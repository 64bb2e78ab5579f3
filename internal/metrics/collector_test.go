package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordTiming(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpDBQuery, 10*time.Millisecond)
	c.RecordTiming(OpDBQuery, 30*time.Millisecond)
	c.RecordFailure(OpDBQuery, 20*time.Millisecond)

	snap := c.Op(OpDBQuery)
	require.NotNil(t, snap)
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, int64(1), snap.Failures)
	assert.Equal(t, int64(60), snap.TotalTimeMs)
	assert.Equal(t, int64(10), snap.MinTimeMs)
	assert.Equal(t, int64(30), snap.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.AvgTimeMs, 0.001)
	assert.Nil(t, snap.TotalInputTokens)
}

func TestCollectorObserve(t *testing.T) {
	c := NewCollector()
	c.Observe(OpChatSync, time.Now(), nil)
	c.Observe(OpChatSync, time.Now(), errors.New("boom"))

	snap := c.Snapshot()
	require.NotNil(t, snap.ChatSync)
	assert.Equal(t, int64(2), snap.ChatSync.Count)
	assert.Equal(t, int64(1), snap.ChatSync.Failures)
	assert.Nil(t, snap.ChatSend, "unrecorded operations stay nil")
}

func TestCollectorLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 100, 40)
	c.RecordLLMUsage(OpLLMGenerate, time.Second, 50, 10)

	snap := c.Snapshot().LLMGenerate
	require.NotNil(t, snap)
	require.NotNil(t, snap.TotalInputTokens)
	assert.Equal(t, int64(150), *snap.TotalInputTokens)
	assert.Equal(t, int64(50), *snap.TotalOutputTokens)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordTiming(OpGraphQL, time.Millisecond)
	c.Observe(OpGraphQL, time.Now(), nil)
	assert.Nil(t, c.Op(OpGraphQL))
	assert.Equal(t, Snapshot{}, c.Snapshot())
}
