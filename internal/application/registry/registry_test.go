package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagged(tag string) ports.CapabilityFunc {
	return func(ctx context.Context, tenantID int, params json.RawMessage) (*domain.CapabilityResult, error) {
		return domain.SuccessResult(json.RawMessage(`"`+tag+`"`), nil), nil
	}
}

func resolveTag(t *testing.T, r *Registry, name, version string) (string, string) {
	t.Helper()
	c, resolved, ok := r.Resolve(name, version)
	require.True(t, ok, "expected %s@%s to resolve", name, version)
	res, err := c.Execute(context.Background(), 0, nil)
	require.NoError(t, err)
	var tag string
	require.NoError(t, json.Unmarshal(res.Data, &tag))
	return tag, resolved
}

func TestRegistry_ExactVersion(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v1", tagged("one")))
	require.NoError(t, r.Register("sales", "v2", tagged("two")))

	tag, resolved := resolveTag(t, r, "sales", "v1")
	assert.Equal(t, "one", tag)
	assert.Equal(t, "v1", resolved)

	_, _, ok := r.Resolve("sales", "v3")
	assert.False(t, ok)

	_, _, ok = r.Resolve("inventory", "v1")
	assert.False(t, ok)
}

func TestRegistry_LatestPrefersActive(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v1", tagged("one"), WithActive()))
	require.NoError(t, r.Register("sales", "v2", tagged("two")))

	tag, resolved := resolveTag(t, r, "sales", "")
	assert.Equal(t, "one", tag)
	assert.Equal(t, "v1", resolved)

	require.NoError(t, r.SetActive("sales", "v2"))
	tag, _ = resolveTag(t, r, "sales", "")
	assert.Equal(t, "two", tag)
}

func TestRegistry_LatestUsesSemver(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v10", tagged("ten")))
	require.NoError(t, r.Register("sales", "v2", tagged("two")))
	require.NoError(t, r.Register("sales", "v1.5.0", tagged("one-five")))

	tag, resolved := resolveTag(t, r, "sales", "")
	assert.Equal(t, "ten", tag)
	assert.Equal(t, "v10", resolved)
}

func TestRegistry_LatestFallsBackToRegistrationOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "beta", tagged("beta")))
	require.NoError(t, r.Register("sales", "alpha", tagged("alpha")))

	tag, _ := resolveTag(t, r, "sales", "")
	assert.Equal(t, "alpha", tag)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v1", tagged("one")))

	err := r.Register("sales", "v1", tagged("again"))
	assert.ErrorIs(t, err, domain.ErrCapabilityExists)

	assert.Error(t, r.Register("", "v1", tagged("x")))
	assert.Error(t, r.Register("sales", "", tagged("x")))
	assert.Error(t, r.Register("sales", "v9", nil))
}

func TestRegistry_Deregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v1", tagged("one")))
	require.NoError(t, r.Register("sales", "v2", tagged("two"), WithActive()))

	require.NoError(t, r.Deregister("sales", "v2"))
	tag, _ := resolveTag(t, r, "sales", "")
	assert.Equal(t, "one", tag)

	require.NoError(t, r.Deregister("sales", "v1"))
	_, _, ok := r.Resolve("sales", "")
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	assert.ErrorIs(t, r.Deregister("sales", "v1"), domain.ErrCapabilityNotFound)
}

func TestRegistry_List(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v2", tagged("two")))
	require.NoError(t, r.Register("sales", "v1", tagged("one"), WithDescription("legacy")))
	require.NoError(t, r.Register("inventory", "v1", tagged("inv")))

	assert.Equal(t, []domain.CapabilityDescriptor{
		{Name: "inventory", Version: "v1", Active: true},
		{Name: "sales", Version: "v1", Description: "legacy"},
		{Name: "sales", Version: "v2", Active: true},
	}, r.List())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("sales", "v1", tagged("one")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, ok := r.Resolve("sales", "")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
