package blacklist

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkInvalidIdempotent(t *testing.T) {
	r := NewRegistry()

	r.MarkInvalid("FOOUSDT")
	r.MarkInvalid("FOOUSDT")

	assert.True(t, r.IsInvalid("FOOUSDT"))
	assert.Equal(t, 1, r.Len())
}

func TestClearReturnsPreviousSize(t *testing.T) {
	r := NewRegistry()
	r.MarkInvalid("FOOUSDT")
	r.MarkInvalid("BARUSDT")

	assert.Equal(t, 2, r.Clear())
	assert.Equal(t, 0, r.Clear())
	assert.False(t, r.IsInvalid("FOOUSDT"))
}

func TestFilterPreservesOrder(t *testing.T) {
	r := NewRegistry()
	r.MarkInvalid("BARUSDT")

	got := r.Filter([]string{"FOOUSDT", "BARUSDT", "BAZUSDT"})

	assert.Equal(t, []string{"FOOUSDT", "BAZUSDT"}, got)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.MarkInvalid("FOOUSDT")
				r.IsInvalid("FOOUSDT")
				r.Len()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}
