package tenant_test

import (
	"context"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

func TestStack_ConcurrentUnitsAreIsolated(t *testing.T) {
	t.Parallel()

	const units = 64
	const iterations = 500

	var wg sync.WaitGroup
	wg.Add(units)

	for range units {
		go func() {
			defer wg.Done()

			ctx := tenant.Detach(context.Background())
			own := tenant.New()

			for range iterations {
				scoped, release, err := tenant.Enter(ctx, own)
				if !assert.NoError(t, err) {
					return
				}

				runtime.Gosched()

				peeked, ok := tenant.Peek(scoped)
				assert.True(t, ok)
				assert.Equal(t, own, peeked)

				current, err := tenant.Current(scoped)
				assert.NoError(t, err)
				assert.Equal(t, own, current)

				release()
			}

			assert.Zero(t, tenant.Depth(ctx))
		}()
	}

	wg.Wait()
}

func TestStack_ConcurrentAccessIsSafe(t *testing.T) {
	t.Parallel()

	s := tenant.NewStack()
	base, err := s.Push(tenant.New())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				_, _ = s.Peek()
				_ = s.Depth()
			}
		}()
	}
	wg.Wait()

	base.Release()
	assert.Zero(t, s.Depth())
}
