package monitor

import (
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFanOut_PreservesOrderAndRunsConcurrently(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	var inFlight int32
	var maxInFlight int32

	results := FanOut(items, 3, func(i int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		defer atomic.AddInt32(&inFlight, -1)
		return i * i, nil
	})

	require.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, results)
	require.LessOrEqual(t, int(maxInFlight), 3)
}

func TestFanOut_EmptyInput(t *testing.T) {
	results := FanOut([]int{}, 5, func(i int) (int, error) { return i, nil })
	require.Nil(t, results)
}

func TestFanOut_ConcurrencyClampedToItemCount(t *testing.T) {
	items := []string{"a", "b"}
	results := FanOut(items, 10, func(s string) (string, error) { return s + s, nil })
	sort.Strings(results)
	require.Equal(t, []string{"aa", "bb"}, results)
}
