package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-guard/internal/handler/response"
	"wallet-guard/internal/model"
	"wallet-guard/internal/popup"
	"wallet-guard/internal/statestore"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/store"
	"wallet-guard/pkg/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Init()
}

type env struct {
	engine   *gin.Engine
	state    *statestore.StateStore
	registry *windows.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := store.NewMemoryStore()
	state := statestore.New(st, "guard:")
	reg := windows.NewRegistry()
	t.Cleanup(func() {
		reg.Close()
		_ = st.Close()
	})

	popupHandler := NewPopupHandler(popup.NewService(state, reg))
	windowHandler := NewWindowHandler(reg)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/popup/view", popupHandler.View)
	api.POST("/popup/continue", popupHandler.Continue)
	api.POST("/popup/reject", popupHandler.Reject)
	api.POST("/popup/update/dismiss", popupHandler.DismissUpdate)
	api.PUT("/popup/settings", popupHandler.UpdateSettings)
	api.GET("/windows", windowHandler.List)
	api.DELETE("/windows/:id", windowHandler.Close)
	return &env{engine: r, state: state, registry: reg}
}

func (e *env) do(t *testing.T, method, path string, body any) response.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestPopupFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	params, _ := json.Marshal([]string{"0x68656c6c6f", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"})
	args := model.RequestArgs{ChainID: "0x1", Method: model.MethodPersonalSign, Params: params}
	pending := model.NewPending("req-1", "example.com", args, model.ResolvePayload(args), time.Now())
	require.NoError(t, e.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &pending, nil
	}))
	win, err := e.registry.Create(ctx, windows.CreateOptions{Kind: windows.KindPopup, Width: 420, Height: 760})
	require.NoError(t, err)

	// 1. 页面
	resp := e.do(t, http.MethodGet, "/api/v1/popup/view", nil)
	assert.Equal(t, errno.OK.Code, resp.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, string(popup.ViewPending), data["kind"])

	// 2. 参数错误
	resp = e.do(t, http.MethodPost, "/api/v1/popup/reject", map[string]any{"windowId": win.ID})
	assert.Equal(t, errno.ErrBind.Code, resp.Code)

	// 3. 拒绝并关闭窗口
	resp = e.do(t, http.MethodPost, "/api/v1/popup/reject", map[string]any{"id": "req-1", "windowId": win.ID})
	assert.Equal(t, errno.OK.Code, resp.Code)

	cur, err := e.state.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ActionReject, cur.Action)
	assert.Empty(t, e.registry.List())

	// 4. 重复操作
	resp = e.do(t, http.MethodPost, "/api/v1/popup/continue", map[string]any{"id": "req-1"})
	assert.Equal(t, errno.ErrAlreadyCompleted.Code, resp.Code)
}

func TestSettingsAndNotice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	resp := e.do(t, http.MethodPut, "/api/v1/popup/settings", map[string]any{"disable": true})
	assert.Equal(t, errno.OK.Code, resp.Code)
	settings, err := e.state.Settings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.Disable)

	require.NoError(t, e.state.SetNotice(ctx, statestore.UpdateNotice{Version: "1.0.0", Message: "hi"}))
	resp = e.do(t, http.MethodPost, "/api/v1/popup/update/dismiss", nil)
	assert.Equal(t, errno.OK.Code, resp.Code)
	notice, err := e.state.Notice(ctx)
	require.NoError(t, err)
	assert.Nil(t, notice)
}

func TestWindows(t *testing.T) {
	e := newEnv(t)
	win, err := e.registry.Create(context.Background(), windows.CreateOptions{Kind: windows.KindBypass, Width: 760, Height: 760})
	require.NoError(t, err)

	resp := e.do(t, http.MethodGet, "/api/v1/windows", nil)
	assert.Len(t, resp.Data.([]any), 1)

	resp = e.do(t, http.MethodDelete, "/api/v1/windows/abc", nil)
	assert.Equal(t, errno.ErrBind.Code, resp.Code)

	resp = e.do(t, http.MethodDelete, "/api/v1/windows/"+itoa(win.ID), nil)
	assert.Equal(t, errno.OK.Code, resp.Code)

	resp = e.do(t, http.MethodDelete, "/api/v1/windows/"+itoa(win.ID), nil)
	assert.Equal(t, errno.ErrWindowNotFound.Code, resp.Code)
}

func TestHealthCheck(t *testing.T) {
	r := gin.New()
	healthy := NewHealthHandler("1.2.0", map[string]Pinger{
		"store": PingFunc(func(context.Context) error { return nil }),
	})
	r.GET("/ok", healthy.HealthCheck)
	broken := NewHealthHandler("1.2.0", map[string]Pinger{
		"store": PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})
	r.GET("/broken", broken.HealthCheck)

	for path, code := range map[string]int{"/ok": errno.OK.Code, "/broken": errno.InternalServerError.Code} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var resp response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, code, resp.Code, path)
	}
}

type injectedStub struct {
	reply string
	err   error
}

func (s injectedStub) PingInjected(context.Context) (string, error) { return s.reply, s.err }

func TestPagePing(t *testing.T) {
	r := gin.New()
	h := NewPageHandler(map[string]InjectedPinger{
		"app.example.com":  injectedStub{reply: "hello content from injected"},
		"down.example.com": injectedStub{err: context.DeadlineExceeded},
	})
	r.GET("/api/v1/pages/:hostname/ping", h.Ping)

	get := func(path string) response.Response {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		var resp response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	resp := get("/api/v1/pages/app.example.com/ping")
	require.Equal(t, errno.OK.Code, resp.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "hello content from injected", data["reply"])

	// 注入脚本不在线
	assert.Equal(t, errno.ErrTransport.Code, get("/api/v1/pages/down.example.com/ping").Code)
	// 未配置的页面
	assert.Equal(t, errno.ErrBind.Code, get("/api/v1/pages/other.example.com/ping").Code)
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}
