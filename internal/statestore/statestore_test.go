package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-guard/internal/model"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/store"
)

func newTestStore(t *testing.T) *StateStore {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	return New(st, "pocket.store.")
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)

	changes := make(chan RequestChange, 8)
	unsubscribe, err := s.SubscribeRequest(func(c RequestChange) { changes <- c })
	require.NoError(t, err)
	defer unsubscribe()

	args := model.RequestArgs{ChainID: "0x1", Method: model.MethodEthSign}
	pending := model.NewPending("req-1", "example.com", args, model.ResolvePayload(args), time.Now())
	require.NoError(t, s.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &pending, nil
	}))

	select {
	case c := <-changes:
		assert.Nil(t, c.Old)
		require.NotNil(t, c.New)
		assert.Equal(t, "req-1", c.New.ID)
		assert.Equal(t, model.StatePending, c.New.State)
	case <-time.After(time.Second):
		t.Fatal("未收到变更通知")
	}

	// ErrSkipWrite 不写入, 也不通知
	require.NoError(t, s.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return nil, store.ErrSkipWrite
	}))

	require.NoError(t, s.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		done := cur.Complete(model.ActionReject, &errno.ErrUserRejected, time.Now())
		return &done, nil
	}))

	select {
	case c := <-changes:
		require.NotNil(t, c.Old)
		assert.Equal(t, model.StatePending, c.Old.State)
		assert.Equal(t, model.StateCompleted, c.New.State)
		assert.Equal(t, model.ActionReject, c.New.Action)
		require.NotNil(t, c.New.Result)
		assert.Equal(t, 4001, c.New.Result.Code)
	case <-time.After(time.Second):
		t.Fatal("未收到变更通知")
	}

	require.NoError(t, s.ClearRequest(ctx))
	cur, err = s.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestSettingsDefaultAndOverride(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings{}, settings)

	require.NoError(t, s.SetSettings(ctx, Settings{SkipKnownMarketplaces: true}))
	settings, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.SkipKnownMarketplaces)
	assert.False(t, settings.Disable)
}

func TestClientIDIsStable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.ClientID(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := s.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDismissNotice(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// 没有提示时不报错
	require.NoError(t, s.DismissNotice(ctx))

	require.NoError(t, s.SetNotice(ctx, UpdateNotice{Version: "1.2.0", Message: "new", Link: "https://example.com"}))
	notice, err := s.Notice(ctx)
	require.NoError(t, err)
	require.NotNil(t, notice)
	assert.Equal(t, "1.2.0", notice.Version)

	require.NoError(t, s.DismissNotice(ctx))

	notice, err = s.Notice(ctx)
	require.NoError(t, err)
	assert.Nil(t, notice)

	seen, err := s.LastSeenVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", seen)
}
