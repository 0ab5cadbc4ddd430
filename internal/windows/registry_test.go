package windows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-guard/pkg/errno"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	defer r.Close()

	removed := make(chan int, 4)
	cancel := r.OnRemoved(func(id int) { removed <- id })
	defer cancel()

	popup, err := r.Create(ctx, CreateOptions{Kind: KindPopup, URL: "popup.html", Width: 420, Height: 760})
	require.NoError(t, err)
	bypass, err := r.Create(ctx, CreateOptions{Kind: KindBypass, URL: "bypass.html", Width: 760, Height: 760})
	require.NoError(t, err)
	assert.NotEqual(t, popup.ID, bypass.ID)

	list := r.List()
	require.Len(t, list, 2)
	assert.False(t, list[0].Focused)
	assert.True(t, list[1].Focused)

	require.NoError(t, r.Focus(ctx, popup.ID))
	w, ok := r.Get(popup.ID)
	require.True(t, ok)
	assert.True(t, w.Focused)

	require.NoError(t, r.Remove(ctx, popup.ID))
	select {
	case id := <-removed:
		assert.Equal(t, popup.ID, id)
	case <-time.After(time.Second):
		t.Fatal("未收到关闭通知")
	}

	err = r.Remove(ctx, popup.ID)
	assert.ErrorIs(t, err, errno.ErrWindowNotFound)
	assert.ErrorIs(t, r.Focus(ctx, popup.ID), errno.ErrWindowNotFound)
	assert.Len(t, r.List(), 1)
}

func TestParseID(t *testing.T) {
	id, err := ParseID("12")
	require.NoError(t, err)
	assert.Equal(t, 12, id)

	_, err = ParseID("abc")
	assert.ErrorIs(t, err, errno.ErrWindowNotFound)
	_, err = ParseID("0")
	assert.Error(t, err)
}
