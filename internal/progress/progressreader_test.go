package progress

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReportsEveryInterval(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 100)

	var reports []int64

	pr := NewReader(iotest.OneByteReader(bytes.NewReader(data)), int64(len(data)), 25, func(read, total int64) {
		assert.Equal(t, int64(100), total)
		reports = append(reports, read)
	})

	out, err := io.ReadAll(pr)
	require.NoError(t, err)

	assert.Equal(t, data, out)
	assert.Equal(t, []int64{25, 50, 75, 100}, reports)
	assert.Equal(t, int64(100), pr.BytesRead())
}

func TestReader_NilCallback(t *testing.T) {
	pr := NewReader(bytes.NewReader([]byte("abc")), 3, 1, nil)

	_, err := io.Copy(io.Discard, pr)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pr.BytesRead())
}
