package messaging_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatemgmt/messaging"
	"estatemgmt/messaging/transport/memory"
)

// 多 goroutine 并发 Publish，配合 -race 检查订阅与分发路径
func TestMessageBus_WithMemoryTransport_ConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	tpt := memory.NewTransport()
	require.NoError(t, tpt.Start(ctx))
	defer tpt.Close()

	bus := messaging.NewMessageBus(tpt)

	var handled int32
	const msgType = "concurrent-test"
	require.NoError(t, bus.Subscribe(ctx, msgType, messaging.HandlerFunc(func(ctx context.Context, m messaging.IMessage) error {
		atomic.AddInt32(&handled, 1)
		return nil
	})))

	const (
		goroutines = 8
		perGor     = 200
	)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGor; i++ {
				msg := messaging.NewMessage(fmt.Sprintf("%d-%d", id, i), msgType, nil)
				assert.NoError(t, bus.Publish(ctx, msg))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, int32(goroutines*perGor), atomic.LoadInt32(&handled))
}
