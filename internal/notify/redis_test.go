package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/wsmodel/internal/metamodel/builder"
	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
	"github.com/conduit-lang/wsmodel/internal/testing/fixtures"
)

const channel = "wsmodel.endpoints"

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, mr
}

func TestDial(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	m := domain.NewMetamodel(source.NewWorkspace(nil))
	p, err := Dial(context.Background(), Config{Addr: mr.Addr(), Channel: channel}, m, nil)
	require.NoError(t, err)
	assert.Equal(t, channel+":endpoints", p.IndexKey())
	assert.NoError(t, p.Close())
}

func TestDial_ConnectionError(t *testing.T) {
	m := domain.NewMetamodel(source.NewWorkspace(nil))
	_, err := Dial(context.Background(), Config{Addr: "localhost:99999", Channel: channel}, m, nil)
	assert.Error(t, err)
}

func TestPublisherMirrorsEndpoints(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)

	w := source.NewWorkspace(nil)
	m := domain.NewMetamodel(w)
	p := NewPublisher(client, channel, m, nil)
	defer p.Close()
	m.AddListener(p)

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	messages := sub.Channel()

	proc := builder.NewProcessor(m)
	_, _, err = proc.Load(ctx, w, source.MustProgram(fixtures.ItemResourceSpec()))
	require.NoError(t, err)

	e := m.Endpoints()[0]
	stored := mr.HGet(p.IndexKey(), e.ID.String())
	require.NotEmpty(t, stored)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(stored), &decoded))
	assert.Equal(t, "/items", decoded["path"])

	select {
	case msg := <-messages:
		var batch struct {
			Metamodel string `json:"metamodel"`
			Events    []struct {
				Kind string `json:"kind"`
			} `json:"events"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &batch))
		assert.Equal(t, m.ID().String(), batch.Metamodel)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, "added", batch.Events[0].Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	_, _, err = proc.Load(ctx, w, source.MustProgram())
	require.NoError(t, err)
	assert.False(t, mr.Exists(p.IndexKey()), "removed endpoints leave the hash")
}

func TestPublishNothing(t *testing.T) {
	client, mr := setupTestRedis(t)
	m := domain.NewMetamodel(source.NewWorkspace(nil))
	p := NewPublisher(client, channel, m, nil)

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.False(t, mr.Exists(p.IndexKey()))
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	client, mr := setupTestRedis(t)
	m := domain.NewMetamodel(source.NewWorkspace(nil))
	p := NewPublisher(client, channel, m, nil)

	mr.HSet(p.IndexKey(), "stale", "{}")
	e := &domain.Endpoint{ID: uuid.New(), Verb: "GET", PathTemplate: "/a"}
	require.NoError(t, p.Sync(ctx, []*domain.Endpoint{e}))
	keys, err := mr.HKeys(p.IndexKey())
	require.NoError(t, err)
	assert.Equal(t, []string{e.ID.String()}, keys)
}

func TestPublishFailureIsLogged(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	m := domain.NewMetamodel(source.NewWorkspace(nil))
	p := NewPublisher(client, channel, m, nil)
	mr.Close()

	e := &domain.Endpoint{Verb: "GET", PathTemplate: "/a"}
	events := []domain.EndpointEvent{{Kind: domain.EndpointAdded, Endpoint: e}}
	assert.Error(t, p.Publish(context.Background(), events))
	assert.NotPanics(t, func() { p.EndpointsChanged(context.Background(), events) })
}
