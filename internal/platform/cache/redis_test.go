package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), addr)
	assert.Error(t, err)
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	c := NewJSON(client, "test:", time.Minute)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	var got payload
	ok, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetJSON(ctx, "k", payload{Name: "cash", Count: 2}))
	assert.True(t, mr.Exists("test:k"))

	ok, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "cash", Count: 2}, got)

	mr.FastForward(2 * time.Minute)
	ok, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
