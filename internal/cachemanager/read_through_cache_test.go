package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCacheManager[K comparable, V any] struct {
	mock.Mock
}

func newMockCacheManager[K comparable, V any](t *testing.T) *mockCacheManager[K, V] {
	m := &mockCacheManager[K, V]{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *mockCacheManager[K, V]) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type pathInput struct {
	Path string
}

func digestOf(_ context.Context, input pathInput) (digest, error) {
	return digest{Sum: "sum:" + input.Path}, nil
}

func TestReadThroughCache_Get_WithCacheDisabled(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, true)

	got, err := rtc.Get(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, digest{Sum: "sum:/root/a.txt"}, got)
}

func TestReadThroughCache_GetWithRefresh_WithCacheDisabled(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, true)

	got, err := rtc.GetWithRefresh(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, digest{Sum: "sum:/root/a.txt"}, got)
}

func TestReadThroughCache_Get_WithValueInCache(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	manager.On("Get", mock.Anything, "a.txt").Return(digest{Sum: "cached"}, true)

	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, false)

	got, err := rtc.Get(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, digest{Sum: "cached"}, got)
}

func TestReadThroughCache_Get_EmptyCache(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	manager.On("Get", mock.Anything, "a.txt").Return(digest{}, false)
	manager.On("Set", mock.Anything, "a.txt", digest{Sum: "sum:/root/a.txt"}, time.Minute).Return()

	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, false)

	got, err := rtc.Get(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, digest{Sum: "sum:/root/a.txt"}, got)
}

func TestReadThroughCache_Get_LoadError(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	manager.On("Get", mock.Anything, "a.txt").Return(digest{}, false)

	rtc := NewReadThroughCache[string, digest, pathInput](manager,
		func(context.Context, pathInput) (digest, error) {
			return digest{}, errors.New("read failed")
		},
		false,
	)

	_, err := rtc.Get(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.Error(t, err)
	manager.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_GetWithRefresh_WithValueInCache(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	manager.On("GetWithRefresh", mock.Anything, "a.txt", time.Minute).Return(digest{Sum: "cached"}, true)

	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, false)

	got, err := rtc.GetWithRefresh(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, digest{Sum: "cached"}, got)
}

func TestReadThroughCache_GetWithRefresh_EmptyCache(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	manager.On("GetWithRefresh", mock.Anything, "a.txt", time.Minute).Return(digest{}, false)
	manager.On("Set", mock.Anything, "a.txt", digest{Sum: "sum:/root/a.txt"}, time.Minute).Return()

	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, false)

	got, err := rtc.GetWithRefresh(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, digest{Sum: "sum:/root/a.txt"}, got)
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	manager := newMockCacheManager[string, digest](t)
	manager.On("Delete", mock.Anything, []string{"a.txt"}).Return(nil)
	manager.On("Flush", mock.Anything).Return(nil)

	rtc := NewReadThroughCache[string, digest, pathInput](manager, digestOf, false)

	require.NoError(t, rtc.Invalidate(context.Background(), "a.txt"))
	require.NoError(t, rtc.InvalidateAll(context.Background()))
}

func TestReadThroughCache_WithInMemoryManager(t *testing.T) {
	calls := 0
	rtc := NewReadThroughCache[string, digest, pathInput](
		NewInMemoryCacheManager[string, digest]("digests", DefaultExpiration, DefaultCleanupInterval),
		func(ctx context.Context, input pathInput) (digest, error) {
			calls++
			return digestOf(ctx, input)
		},
		false,
	)

	for i := 0; i < 3; i++ {
		_, err := rtc.Get(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
		require.NoError(t, err)
	}
	require.Equal(t, 1, calls)

	require.NoError(t, rtc.Invalidate(context.Background(), "a.txt"))
	_, err := rtc.Get(context.Background(), "a.txt", pathInput{Path: "/root/a.txt"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}
