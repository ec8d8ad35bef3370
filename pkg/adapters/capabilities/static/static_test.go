package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapability_ReturnsConfiguredData(t *testing.T) {
	count := 2
	c := New(Config{Data: []byte(`[{"id":1},{"id":2}]`), RecordCount: &count})

	result, err := c.Execute(context.Background(), 7, nil)
	require.NoError(t, err)

	assert.True(t, result.IsSuccess)
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(result.Data))
	require.NotNil(t, result.RecordCount)
	assert.Equal(t, 2, *result.RecordCount)

	// Callers mutating the result do not affect later calls
	*result.RecordCount = 99
	result.Data[0] = '{'

	again, err := c.Execute(context.Background(), 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, *again.RecordCount)
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(again.Data))
}

func TestCapability_NoRecordCount(t *testing.T) {
	c := New(Config{Data: []byte(`"ok"`)})

	result, err := c.Execute(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, result.IsSuccess)
	assert.Nil(t, result.RecordCount)
}
