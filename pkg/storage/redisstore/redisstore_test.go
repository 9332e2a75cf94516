package redisstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/getmockd/mockfleet/pkg/storage"
	"github.com/getmockd/mockfleet/pkg/storage/storagetest"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}

	ctx := context.Background()
	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	}
	c, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(t, c)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}

	endpoint, err := c.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	return endpoint
}

func TestStore(t *testing.T) {
	addr := startRedis(t)

	var n atomic.Int64
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		prefix := fmt.Sprintf("test%d", n.Add(1))
		s := New(redis.NewClient(&redis.Options{Addr: addr}), prefix)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpen_Unreachable(t *testing.T) {
	_, err := Open(context.Background(), "127.0.0.1:1", "")
	require.Error(t, err)
}
