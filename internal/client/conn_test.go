package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestDialGivesUpWithConnectivityError(t *testing.T) {
	start := time.Now()
	_, err := Dial(context.Background(), DialConfig{
		URL:         "ws://" + closedAddr(t) + "/ws",
		Token:       "t",
		Delay:       20 * time.Millisecond,
		MaxAttempts: 3,
	}, zap.NewNop().Sugar())

	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDialHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dial(ctx, DialConfig{URL: "ws://" + closedAddr(t) + "/ws", Delay: time.Second, MaxAttempts: 10}, zap.NewNop().Sugar())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConnectivity)
}
