package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingChannel_ForceSendDropsOldest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}

	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, 3, rc.Cap())
	assert.Equal(t, 7, <-rc.C())
	assert.Equal(t, 8, <-rc.C())
	assert.Equal(t, 9, <-rc.C())

	stats := rc.Stats()
	assert.Equal(t, int64(10), stats.Written)
	assert.Equal(t, int64(7), stats.Overwritten)
}

func TestRingChannel_ForceSendReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.ForceSend("a"))
	assert.True(t, rc.ForceSend("b"))
	assert.Equal(t, "b", <-rc.C())
}

func TestRingChannel_Close(t *testing.T) {
	rc := New[int](2)
	rc.ForceSend(1)
	rc.Close()
	rc.Close()

	assert.False(t, rc.ForceSend(2))
	assert.Equal(t, int64(1), rc.Stats().Rejected)

	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-rc.C()
	assert.False(t, ok)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
