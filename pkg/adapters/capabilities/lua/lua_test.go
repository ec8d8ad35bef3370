package lua

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

func TestExecuteReturnsPlainValueAsData(t *testing.T) {
	script := `
function execute(tenant_id, params)
  return { tenant = tenant_id, name = params.name, tags = { "a", "b" } }
end
`
	c, err := New("echo", Config{Script: script})
	require.NoError(t, err)

	result, err := c.Execute(context.Background(), 42, []byte(`{"name":"alice"}`))
	require.NoError(t, err)

	assert.True(t, result.IsSuccess)
	assert.JSONEq(t, `{"tenant":42,"name":"alice","tags":["a","b"]}`, string(result.Data))
	assert.Nil(t, result.RecordCount)
}

func TestExecuteStructuredSuccess(t *testing.T) {
	script := `
function execute(tenant_id, params)
  local rows = {}
  for i = 1, params.limit do
    rows[i] = { id = i }
  end
  return { success = true, data = rows, record_count = #rows }
end
`
	c, err := New("rows", Config{Script: script})
	require.NoError(t, err)

	result, err := c.Execute(context.Background(), 1, []byte(`{"limit":3}`))
	require.NoError(t, err)

	assert.True(t, result.IsSuccess)
	assert.JSONEq(t, `[{"id":1},{"id":2},{"id":3}]`, string(result.Data))
	require.NotNil(t, result.RecordCount)
	assert.Equal(t, 3, *result.RecordCount)
}

func TestExecuteStructuredFailure(t *testing.T) {
	script := `
function execute(tenant_id, params)
  if params.id == nil then
    return { success = false, error = "id is required", error_code = "MISSING_ID" }
  end
  return { success = false, error = "not found" }
end
`
	c, err := New("lookup", Config{Script: script})
	require.NoError(t, err)

	result, err := c.Execute(context.Background(), 1, []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, "MISSING_ID", result.ErrorCode)
	assert.Equal(t, "id is required", result.ErrorMessage)

	result, err = c.Execute(context.Background(), 1, []byte(`{"id":5}`))
	require.NoError(t, err)
	assert.False(t, result.IsSuccess)
	assert.Equal(t, ErrorCodeScriptFailed, result.ErrorCode)
}

func TestExecuteRuntimeErrorIsReturned(t *testing.T) {
	script := `
function execute(tenant_id, params)
  error("boom")
end
`
	c, err := New("broken", Config{Script: script})
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestExecuteHonoursCancellation(t *testing.T) {
	script := `
function execute(tenant_id, params)
  while true do end
end
`
	c, err := New("spin", Config{Script: script})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Execute(ctx, 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecuteStateIsNotShared(t *testing.T) {
	script := `
counter = 0
function execute(tenant_id, params)
  counter = counter + 1
  return counter
end
`
	c, err := New("counter", Config{Script: script})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := c.Execute(context.Background(), 1, nil)
		require.NoError(t, err)
		assert.Equal(t, "1", string(result.Data))
	}
}

func TestNewFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cap.lua")
	require.NoError(t, os.WriteFile(path, []byte(`function execute(t, p) return "ok" end`), 0600))

	c, err := New("file", Config{File: path})
	require.NoError(t, err)

	result, err := c.Execute(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(result.Data))
}

func TestNewRejectsInvalidScripts(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty", Config{}, "script or file is required"},
		{"both", Config{Script: "x = 1", File: "x.lua"}, "mutually exclusive"},
		{"syntax", Config{Script: "function ("}, "parse script"},
		{"no entry point", Config{Script: "x = 1"}, "must define global function"},
		{"entry point not a function", Config{Script: "execute = 1"}, "must be a function"},
		{"missing file", Config{File: "/nonexistent/cap.lua"}, "read script"},
		{"file loading disabled", Config{Script: `dofile("x.lua")`}, "load script"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecuteRejectsSelfReferencingTables(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{
			name:   "direct cycle",
			script: `function execute(t, p) local x = {} x.self = x return x end`,
			want:   "reference to itself",
		},
		{
			name:   "cycle through an array",
			script: `function execute(t, p) local x = {} x[1] = { x } return x end`,
			want:   "reference to itself",
		},
		{
			name:   "cycle in structured data",
			script: `function execute(t, p) local x = {} x.next = { back = x } return { success = true, data = x } end`,
			want:   "reference to itself",
		},
		{
			name: "nesting too deep",
			script: `
function execute(t, p)
  local root = {}
  local node = root
  for i = 1, 200 do
    node.child = {}
    node = node.child
  end
  return root
end
`,
			want: "nesting exceeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New("cyclic", Config{Script: tt.script})
			require.NoError(t, err)

			_, err = c.Execute(context.Background(), 1, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExecuteAllowsSharedTables(t *testing.T) {
	script := `
function execute(t, p)
  local shared = { id = 1 }
  return { a = shared, b = shared }
end
`
	c, err := New("shared", Config{Script: script})
	require.NoError(t, err)

	result, err := c.Execute(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"id":1},"b":{"id":1}}`, string(result.Data))
}

func TestExecuteTopLevelLoopHonoursCancellation(t *testing.T) {
	c, err := New("top-level", Config{Script: `function execute(tenant_id, params) return 1 end`})
	require.NoError(t, err)

	// A chunk that never finishes loading
	c.proto = mustCompile(t, `
function execute(tenant_id, params) return 1 end
while true do end
`)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.Execute(ctx, 1, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func mustCompile(t *testing.T, source string) *lua.FunctionProto {
	t.Helper()
	chunk, err := parse.Parse(strings.NewReader(source), "test")
	require.NoError(t, err)
	proto, err := lua.Compile(chunk, "test")
	require.NoError(t, err)
	return proto
}
