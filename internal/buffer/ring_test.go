package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_WriteSnapshot_NoOverflow(t *testing.T) {
	r := New(16)
	r.Write([]byte("hello"))
	r.Write([]byte(" world"))
	assert.Equal(t, "hello world", string(r.Snapshot()))
}

func TestRing_Write_OverflowTruncatesFront(t *testing.T) {
	r := New(5)
	r.Write([]byte("abc"))
	r.Write([]byte("de"))
	assert.Equal(t, "abcde", string(r.Snapshot()))

	r.Write([]byte("fg"))
	assert.Equal(t, "cdefg", string(r.Snapshot()))
}

func TestRing_Write_ChunkLargerThanCapacity(t *testing.T) {
	r := New(4)
	r.Write([]byte("0123456789"))
	assert.Equal(t, "6789", string(r.Snapshot()))
}

func TestRing_ConcurrentWrites_KeepEveryByte(t *testing.T) {
	r := New(1024)
	var wg sync.WaitGroup
	n := 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			r.Write([]byte{byte(i % 256)})
		}()
	}
	wg.Wait()
	require.Len(t, r.Snapshot(), n)
}

func TestRing_DisposeSilencesWritesAndReads(t *testing.T) {
	r := New(8)
	r.Write([]byte("abc"))
	r.Dispose()
	r.Write([]byte("def"))
	assert.Empty(t, r.Snapshot())
}

func TestRing_ZeroCapacityPanics(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}
