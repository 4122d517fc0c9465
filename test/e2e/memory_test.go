package e2e

import (
	"runtime"
	"testing"

	"github.com/dustin/go-humanize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/fileshover/test/e2e/framework"
)

// TestLargeFileStreamsInConstantMemory serves a 64 MiB sparse file and
// checks the process allocated a small fraction of it. Client and server
// share the process, so the delta covers both ends of the transfer.
func TestLargeFileStreamsInConstantMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large file test in short mode")
	}

	const (
		fileSize = 64 * 1024 * 1024
		maxAlloc = 8 * 1024 * 1024
	)

	tc := framework.NewTestContext(t, framework.TestServerConfig{Workers: 1})
	tc.CreateSparseFile("big.bin", fileSize)

	// Warm up pools and connection paths so they are not counted
	tc.WriteFile("warm.bin", []byte("warm"))
	_ = tc.Get("/warm.bin")

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)

	n, contentLength := tc.DrainGet("/big.bin")

	runtime.ReadMemStats(&after)

	require.Equal(t, int64(fileSize), contentLength)
	require.Equal(t, int64(fileSize), n)

	allocated := after.TotalAlloc - before.TotalAlloc
	t.Logf("Allocated %s while streaming %s", humanize.IBytes(allocated), humanize.IBytes(fileSize))
	assert.Less(t, allocated, uint64(maxAlloc),
		"streaming allocated %s, file is %s", humanize.IBytes(allocated), humanize.IBytes(fileSize))
}
