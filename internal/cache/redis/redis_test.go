package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/pumpbot/internal/config"
	"github.com/alanyoungcy/pumpbot/internal/domain"
)

func TestDecodeStreamsSkipsEntriesWithoutPayload(t *testing.T) {
	got := decodeStreams([]redis.XStream{{
		Stream: TradeStream,
		Messages: []redis.XMessage{
			{ID: "1-0", Values: map[string]interface{}{"payload": `{"mint":"a"}`}},
			{ID: "2-0", Values: map[string]interface{}{"other": "x"}},
			{ID: "3-0", Values: map[string]interface{}{"payload": []byte(`{"mint":"b"}`)}},
			{ID: "4-0", Values: map[string]interface{}{"payload": 42}},
		},
	}})
	assert.Equal(t, []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"mint":"a"}`)},
		{ID: "3-0", Payload: []byte(`{"mint":"b"}`)},
	}, got)
	assert.Empty(t, decodeStreams(nil))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "exec:mintA", ExecutionKey("mintA"))
	assert.Equal(t, "lock:exec:mintA", lockKey(ExecutionKey("mintA")))
	assert.Equal(t, "ratelimit:broker", rateLimitKey("broker"))
}

func TestNewOptions(t *testing.T) {
	cc := ConfigFrom(config.Defaults().Redis)
	opts := newOptions(cc)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)

	cc.TLSEnabled = true
	assert.NotNil(t, newOptions(cc).TLSConfig)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
