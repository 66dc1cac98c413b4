package adapter_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/m-mizutani/aiguide/pkg/adapter"
	"github.com/m-mizutani/gt"
	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

type embedderMock struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (m *embedderMock) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	return m.EmbedFunc(ctx, text)
}

func isCommand(name string) func(cmd []string) bool {
	return func(cmd []string) bool { return cmd[0] == name }
}

func TestEmbeddingCacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(isCommand("GET"))).
		Return(mock.Result(mock.RedisBlobString(rueidis.VectorString32([]float32{0.5, 1.5}))))

	base := &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("must not be called")
	}}

	cache := adapter.NewEmbeddingCache(client, base)
	vec, err := cache.Embed(context.Background(), "masala dosa")
	gt.NoError(t, err)
	gt.Equal(t, vec, []float32{0.5, 1.5})
	gt.Equal(t, base.calls, 0)
}

func TestEmbeddingCacheMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)

	gomock.InOrder(
		client.EXPECT().
			Do(gomock.Any(), mock.MatchFn(isCommand("GET"))).
			Return(mock.Result(mock.RedisNil())),
		client.EXPECT().
			Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "SET" && cmd[2] == rueidis.VectorString32([]float32{1, 2})
			})).
			Return(mock.Result(mock.RedisString("OK"))),
	)

	base := &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return []float32{1, 2}, nil
	}}

	cache := adapter.NewEmbeddingCache(client, base, adapter.WithCacheNamespace("test"))
	vec, err := cache.Embed(context.Background(), "masala dosa")
	gt.NoError(t, err)
	gt.Equal(t, vec, []float32{1, 2})
	gt.Equal(t, base.calls, 1)
}

func TestEmbeddingCacheRedisDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)

	client.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded)).
		Times(2)

	base := &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return []float32{3}, nil
	}}

	vec, err := adapter.NewEmbeddingCache(client, base).Embed(context.Background(), "idli")
	gt.NoError(t, err)
	gt.Equal(t, vec, []float32{3})
}

func TestEmbeddingCacheEmbedderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)

	client.EXPECT().
		Do(gomock.Any(), mock.MatchFn(isCommand("GET"))).
		Return(mock.Result(mock.RedisNil()))

	base := &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return nil, errors.New("quota exceeded")
	}}

	_, err := adapter.NewEmbeddingCache(client, base).Embed(context.Background(), "idli")
	gt.Error(t, err)
}

func TestEmbeddingCacheWithRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	client, err := adapter.NewRedis(adapter.RedisConfig{Addrs: []string{addr}})
	gt.NoError(t, err)
	defer client.Close()

	base := &embedderMock{EmbedFunc: func(context.Context, string) ([]float32, error) {
		return []float32{0.25, 0.75}, nil
	}}
	cache := adapter.NewEmbeddingCache(client, base, adapter.WithCacheNamespace(t.Name()))

	ctx := context.Background()
	for range 2 {
		vec, err := cache.Embed(ctx, "biryani near me")
		gt.NoError(t, err)
		gt.Equal(t, vec, []float32{0.25, 0.75})
	}
	gt.Equal(t, base.calls, 1)
}
