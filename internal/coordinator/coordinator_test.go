package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-guard/internal/model"
	"wallet-guard/internal/service/mq"
	"wallet-guard/internal/simclient"
	"wallet-guard/internal/statestore"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/store"
)

const signer = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

// fakeSimulator 可控的模拟服务. hold 非空时 Simulate 阻塞到 hold 关闭.
type fakeSimulator struct {
	mu       sync.Mutex
	response model.Response
	hold     chan struct{}
	calls    []string

	bypass      bool
	bypassErr   error
	bypassCalls int

	update      *simclient.Update
	updateCalls int
}

func (f *fakeSimulator) Simulate(ctx context.Context, req model.Request) model.Response {
	f.mu.Lock()
	f.calls = append(f.calls, req.ID)
	hold, resp := f.hold, f.response
	f.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}
	return resp
}

func (f *fakeSimulator) CheckBypass(ctx context.Context, req simclient.BypassRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bypassCalls++
	return f.bypass, f.bypassErr
}

func (f *fakeSimulator) FetchUpdate(ctx context.Context, version string) (*simclient.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	return f.update, nil
}

func (f *fakeSimulator) bypassCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bypassCalls
}

type fixture struct {
	c       *Coordinator
	state   *statestore.StateStore
	windows *windows.Registry
	sim     *fakeSimulator
}

func newFixture(t *testing.T, sim *fakeSimulator) *fixture {
	return newFixtureWith(t, sim, nil)
}

// newFixtureWith wrap 非空时 coordinator 使用包装后的窗口管理器
func newFixtureWith(t *testing.T, sim *fakeSimulator, wrap func(*windows.Registry) windows.Manager) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	state := statestore.New(st, "guard:")
	reg := windows.NewRegistry()
	broker := mq.NewMemoryBroker()

	var wm windows.Manager = reg
	if wrap != nil {
		wm = wrap(reg)
	}
	c := New(state, broker, sim, wm, nil, Options{
		Topic:       "guard.runtime",
		BypassRate:  0.01,
		BypassBurst: 1,
		Retention:   time.Minute,
		Version:     "1.2.0",
	})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		c.Stop()
		reg.Close()
		_ = broker.Close()
		_ = st.Close()
	})
	return &fixture{c: c, state: state, windows: reg, sim: sim}
}

func txCommand(id, to string) model.RequestCommand {
	params, _ := json.Marshal([]map[string]string{{"from": signer, "to": to, "value": "0x0"}})
	args := model.RequestArgs{ChainID: "0x1", Signer: signer, Method: model.MethodSendTransaction, Params: params}
	return model.RequestCommand{ID: id, Hostname: "example.com", Args: args, Payload: model.ResolvePayload(args)}
}

func personalSignCommand(id string) model.RequestCommand {
	params, _ := json.Marshal([]string{"0x68656c6c6f", signer})
	args := model.RequestArgs{ChainID: "0x1", Signer: signer, Method: model.MethodPersonalSign, Params: params}
	return model.RequestCommand{ID: id, Hostname: "example.com", Args: args, Payload: model.ResolvePayload(args)}
}

func (f *fixture) current(t *testing.T) *model.Request {
	t.Helper()
	cur, err := f.state.Current(context.Background())
	require.NoError(t, err)
	return cur
}

func (f *fixture) popupWindows() []windows.Window {
	var out []windows.Window
	for _, w := range f.windows.List() {
		if w.Kind == windows.KindPopup {
			out = append(out, w)
		}
	}
	return out
}

func TestRequestReachesActionRequired(t *testing.T) {
	sim := &fakeSimulator{response: model.Response{Error: &model.RequestError{Kind: model.ErrorReverted, Message: "revert reason X"}}}
	f := newFixture(t, sim)

	require.NoError(t, f.c.HandleRequest(context.Background(), personalSignCommand("req-1")))

	require.Eventually(t, func() bool {
		cur := f.current(t)
		return cur != nil && cur.State == model.StateActionRequired
	}, 2*time.Second, 10*time.Millisecond)

	cur := f.current(t)
	require.NotNil(t, cur.Response)
	require.NotNil(t, cur.Response.Error)
	assert.Equal(t, model.ErrorReverted, cur.Response.Error.Kind)
	assert.Contains(t, cur.Response.Error.Message, "revert reason X")

	// 弹窗已打开并指向该请求
	require.Eventually(t, func() bool {
		h := f.c.Popup()
		return h.Phase == "open" && h.RequestID == "req-1"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, f.popupWindows(), 1)
}

func TestNewRequestSupersedesUnfinished(t *testing.T) {
	sim := &fakeSimulator{hold: make(chan struct{})}
	f := newFixture(t, sim)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		history []model.Request
	)
	unsubscribe, err := f.state.SubscribeRequest(func(c statestore.RequestChange) {
		if c.New != nil {
			mu.Lock()
			history = append(history, *c.New)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, f.c.HandleRequest(ctx, txCommand("first", "0x2222222222222222222222222222222222222222")))
	require.NoError(t, f.c.HandleRequest(ctx, txCommand("second", "0x3333333333333333333333333333333333333333")))

	// 第一个以标准的用户拒绝结束
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, r := range history {
			if r.ID == "first" && r.State == model.StateCompleted {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	for _, r := range history {
		if r.ID == "first" && r.State == model.StateCompleted {
			assert.Equal(t, model.ActionReject, r.Action)
			require.NotNil(t, r.Result)
			assert.True(t, errors.Is(*r.Result, errno.ErrUserRejected))
		}
	}
	mu.Unlock()

	// 迟到的第一个模拟结果不会覆盖第二个请求
	close(sim.hold)
	require.Eventually(t, func() bool {
		cur := f.current(t)
		return cur != nil && cur.ID == "second" && cur.State == model.StateActionRequired
	}, 2*time.Second, 10*time.Millisecond)

	// 只有一个弹窗, 由第二个请求驱动
	require.Eventually(t, func() bool {
		return f.c.Popup().RequestID == "second"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, f.popupWindows(), 1)
}

func TestDuplicateRequestDeliveryIgnored(t *testing.T) {
	sim := &fakeSimulator{hold: make(chan struct{})}
	f := newFixture(t, sim)
	ctx := context.Background()
	defer close(sim.hold)

	cmd := txCommand("dup", "0x2222222222222222222222222222222222222222")
	require.NoError(t, f.c.HandleRequest(ctx, cmd))
	require.NoError(t, f.c.HandleRequest(ctx, cmd))

	cur := f.current(t)
	require.NotNil(t, cur)
	assert.Equal(t, model.StatePending, cur.State)
}

func TestClosingPopupRejectsRequest(t *testing.T) {
	sim := &fakeSimulator{response: model.Response{Success: &model.Simulation{}}}
	f := newFixture(t, sim)
	ctx := context.Background()

	require.NoError(t, f.c.HandleRequest(ctx, txCommand("req-1", "0x2222222222222222222222222222222222222222")))
	require.Eventually(t, func() bool {
		cur := f.current(t)
		return cur != nil && cur.State == model.StateActionRequired && f.c.Popup().Phase == "open"
	}, 2*time.Second, 10*time.Millisecond)

	// 用户关闭窗口
	windowID := f.c.Popup().WindowID
	require.NoError(t, f.windows.Remove(ctx, windowID))

	require.Eventually(t, func() bool {
		cur := f.current(t)
		return cur != nil && cur.State == model.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cur := f.current(t)
	assert.Equal(t, "req-1", cur.ID)
	assert.Equal(t, model.ActionReject, cur.Action)
	assert.Equal(t, "none", f.c.Popup().Phase)
}

func TestCompletedRequestClosesPopup(t *testing.T) {
	sim := &fakeSimulator{response: model.Response{Success: &model.Simulation{}}}
	f := newFixture(t, sim)
	ctx := context.Background()

	require.NoError(t, f.c.HandleRequest(ctx, txCommand("req-1", "0x2222222222222222222222222222222222222222")))
	require.Eventually(t, func() bool {
		return f.c.Popup().Phase == "open"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.state.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		done := cur.Complete(model.ActionResolve, nil, time.Now())
		return &done, nil
	}))

	require.Eventually(t, func() bool {
		return f.c.Popup().Phase == "none" && len(f.popupWindows()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// 批准的记录不会被窗口关闭改成拒绝
	cur := f.current(t)
	assert.Equal(t, model.ActionResolve, cur.Action)
}

func TestBypassOpensWindowWhenFingerprintDiffers(t *testing.T) {
	sim := &fakeSimulator{bypass: true}
	f := newFixture(t, sim)

	cmd := txCommand("ignored", "0x2222222222222222222222222222222222222222")
	f.c.HandleBypass(context.Background(), model.BypassCommand{Hostname: "example.com", Request: cmd.Args})

	assert.Equal(t, 1, sim.bypassCount())
	var bypass []windows.Window
	for _, w := range f.windows.List() {
		if w.Kind == windows.KindBypass {
			bypass = append(bypass, w)
		}
	}
	require.Len(t, bypass, 1)
	assert.Equal(t, 760, bypass[0].Width)
	assert.Contains(t, bypass[0].URL, "hostname=example.com")
}

func TestBypassServiceErrorStillWarns(t *testing.T) {
	sim := &fakeSimulator{bypassErr: errors.New("connection refused")}
	f := newFixture(t, sim)

	cmd := txCommand("ignored", "0x2222222222222222222222222222222222222222")
	f.c.HandleBypass(context.Background(), model.BypassCommand{Hostname: "example.com", Request: cmd.Args})
	assert.Len(t, f.windows.List(), 1)
}

func TestBypassDismissedAndRateLimited(t *testing.T) {
	sim := &fakeSimulator{bypass: false}
	f := newFixture(t, sim)
	ctx := context.Background()

	cmd := txCommand("ignored", "0x2222222222222222222222222222222222222222")
	f.c.HandleBypass(ctx, model.BypassCommand{Hostname: "example.com", Request: cmd.Args})
	assert.Empty(t, f.windows.List())

	// burst 为 1, 紧接着的第二次被限流, 不再询问服务
	f.c.HandleBypass(ctx, model.BypassCommand{Hostname: "example.com", Request: cmd.Args})
	assert.Equal(t, 1, sim.bypassCount())

	// 不同 hostname 各自计数
	f.c.HandleBypass(ctx, model.BypassCommand{Hostname: "other.org", Request: cmd.Args})
	assert.Equal(t, 2, sim.bypassCount())
}

func TestBypassMatchingApprovedRequestConsumes(t *testing.T) {
	sim := &fakeSimulator{bypass: true}
	f := newFixture(t, sim)
	ctx := context.Background()

	cmd := txCommand("req-1", "0x2222222222222222222222222222222222222222")
	approved := model.NewPending(cmd.ID, cmd.Hostname, cmd.Args, cmd.Payload, time.Now()).
		Complete(model.ActionResolve, nil, time.Now())
	require.NoError(t, f.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &approved, nil
	}))

	// 钱包看到的签名者不同, 指纹忽略签名者
	bypassArgs := cmd.Args
	bypassArgs.Signer = model.ZeroAddress.Hex()
	f.c.HandleBypass(ctx, model.BypassCommand{Hostname: "example.com", Request: bypassArgs})

	assert.Nil(t, f.current(t))
	assert.Equal(t, 0, sim.bypassCount())
	assert.Empty(t, f.windows.List())
}

func TestHandleConsume(t *testing.T) {
	f := newFixture(t, &fakeSimulator{})
	ctx := context.Background()

	cmd := txCommand("req-1", "0x2222222222222222222222222222222222222222")
	pending := model.NewPending(cmd.ID, cmd.Hostname, cmd.Args, cmd.Payload, time.Now())
	require.NoError(t, f.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &pending, nil
	}))

	// 未完成的记录不能被消费
	require.NoError(t, f.c.HandleConsume(ctx, model.ConsumeCommand{ID: "req-1"}))
	require.NotNil(t, f.current(t))

	approved := pending.Complete(model.ActionResolve, nil, time.Now())
	require.NoError(t, f.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &approved, nil
	}))

	// 指纹不符
	require.NoError(t, f.c.HandleConsume(ctx, model.ConsumeCommand{ID: "req-1", Fingerprint: "0xdead"}))
	require.NotNil(t, f.current(t))

	fp, err := approved.Fingerprint()
	require.NoError(t, err)
	require.NoError(t, f.c.HandleConsume(ctx, model.ConsumeCommand{ID: "req-1", Fingerprint: fp}))
	assert.Nil(t, f.current(t))
}

func TestHandleMessageDispatch(t *testing.T) {
	sim := &fakeSimulator{hold: make(chan struct{})}
	f := newFixture(t, sim)
	ctx := context.Background()
	defer close(sim.hold)

	payload, err := model.NewEnvelope(model.CommandRequest, txCommand("req-1", "0x2222222222222222222222222222222222222222"))
	require.NoError(t, err)
	require.NoError(t, f.c.HandleMessage(ctx, payload))
	assert.Equal(t, "req-1", f.current(t).ID)

	// 无法解析或未知的消息被确认丢弃
	assert.NoError(t, f.c.HandleMessage(ctx, []byte("not json")))
	unknown, _ := json.Marshal(model.Envelope{Command: "nope", Data: json.RawMessage(`{}`)})
	assert.NoError(t, f.c.HandleMessage(ctx, unknown))

	report, err := model.NewEnvelope(model.CommandReportError, model.ReportErrorCommand{
		Hostname:    "example.com",
		ErrorReport: model.ErrorReport{Message: "boom"},
	})
	require.NoError(t, err)
	assert.NoError(t, f.c.HandleMessage(ctx, report))
}

func TestCheckForUpdate(t *testing.T) {
	sim := &fakeSimulator{update: &simclient.Update{Message: "new version", Link: "https://example.com/release"}}
	f := newFixture(t, sim)
	ctx := context.Background()

	require.NoError(t, f.c.CheckForUpdate(ctx))
	notice, err := f.state.Notice(ctx)
	require.NoError(t, err)
	require.NotNil(t, notice)
	assert.Equal(t, "1.2.0", notice.Version)
	assert.Equal(t, "new version", notice.Message)

	// 已有同版本提示时不再拉取
	require.NoError(t, f.c.CheckForUpdate(ctx))
	assert.Equal(t, 1, sim.updateCalls)

	// 用户确认后同版本不再提示
	require.NoError(t, f.state.DismissNotice(ctx))
	require.NoError(t, f.c.CheckForUpdate(ctx))
	assert.Equal(t, 1, sim.updateCalls)
}

func TestJanitorSweep(t *testing.T) {
	f := newFixture(t, &fakeSimulator{})
	ctx := context.Background()
	j := NewJanitor(f.state, nil, "", time.Minute)

	cmd := txCommand("req-1", "0x2222222222222222222222222222222222222222")
	old := time.Now().Add(-2 * time.Minute)
	done := model.NewPending(cmd.ID, cmd.Hostname, cmd.Args, cmd.Payload, old).Complete(model.ActionReject, nil, old)
	require.NoError(t, f.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &done, nil
	}))

	cleared, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Nil(t, f.current(t))

	// 保留期内的记录不动
	fresh := done.Complete(model.ActionReject, nil, time.Now())
	require.NoError(t, f.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &fresh, nil
	}))
	cleared, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)
}

// lockStub 总是拿不到锁
type lockStub struct{}

func (lockStub) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (lockStub) Release(ctx context.Context, key string) error { return nil }

func TestJanitorSkipsWithoutLock(t *testing.T) {
	f := newFixture(t, &fakeSimulator{})
	ctx := context.Background()
	j := NewJanitor(f.state, lockStub{}, "", time.Nanosecond)

	cmd := txCommand("req-1", "0x2222222222222222222222222222222222222222")
	done := model.NewPending(cmd.ID, cmd.Hostname, cmd.Args, cmd.Payload, time.Now()).
		Complete(model.ActionReject, nil, time.Now().Add(-time.Hour))
	require.NoError(t, f.state.UpdateRequest(ctx, func(*model.Request) (*model.Request, error) {
		return &done, nil
	}))

	cleared, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.NotNil(t, f.current(t))
}
