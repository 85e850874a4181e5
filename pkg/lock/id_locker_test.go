package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithLockSerializesSameId(t *testing.T) {
	locker := NewIdLocker()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(7, func() error {
				counter++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestWithLockDifferentIdsDoNotBlock(t *testing.T) {
	locker := NewIdLocker()

	locker.AcquireLock(1)
	defer locker.ReleaseLock(1)

	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(2, func() error { return nil })
		close(done)
	}()

	<-done
}
