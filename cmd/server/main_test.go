package main

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nadmax/bordo/internal/changefeed"
	"github.com/nadmax/bordo/internal/config"
	"github.com/nadmax/bordo/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChangeFeed(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	q, err := queue.NewQueue(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	assert.IsType(t, &changefeed.RedisFeed{}, newChangeFeed(config.FeedRedis, q))
	assert.IsType(t, &changefeed.Local{}, newChangeFeed(config.FeedLocal, q))
}
