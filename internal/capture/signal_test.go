package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_ActiveAt(t *testing.T) {
	sig := Signal{CreatedAt: t0, ExpiresAt: t0.Add(time.Minute)}
	assert.True(t, sig.ActiveAt(t0.Add(59*time.Second)))
	assert.False(t, sig.ActiveAt(t0.Add(time.Minute)))
}

func TestMemorySignalStore_TakeConsumes(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySignalStore()

	got, err := s.Take(ctx, SignalOAuth, "github.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Put(ctx, Signal{Kind: SignalOAuth, Domain: "github.com", CreatedAt: t0}))
	require.NoError(t, s.Put(ctx, Signal{Kind: SignalOAuth, Domain: "github.com", CreatedAt: t0.Add(time.Second)}))
	require.NoError(t, s.Put(ctx, Signal{Kind: SignalForm, Domain: "github.com", Value: "a@b.io"}))
	assert.Equal(t, 2, s.Len())

	got, err = s.Take(ctx, SignalOAuth, "github.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, t0.Add(time.Second), got.CreatedAt)

	got, err = s.Take(ctx, SignalOAuth, "github.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, s.Len())
}

func TestRedisSignalStore_Key(t *testing.T) {
	s := NewRedisSignalStore(nil, "sess-1")
	assert.Equal(t, "capture:signal:sess-1:oauth:github.com", s.Key(SignalOAuth, "github.com"))
	assert.Equal(t, "capture:signal:sess-1:form:github.com", s.Key(SignalForm, "github.com"))
}
