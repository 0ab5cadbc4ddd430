package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/internal/statestore"
	"wallet-guard/pkg/logger"
	"wallet-guard/pkg/monitor"
	"wallet-guard/pkg/store"
	"wallet-guard/pkg/utils/lock"
)

const janitorLockKey = "cron:lock:janitor"

// Janitor 定期清除过期的已完成记录
type Janitor struct {
	cron      *cron.Cron
	state     *statestore.StateStore
	locker    lock.DistributedLock
	spec      string
	retention time.Duration
	now       func() time.Time
}

func NewJanitor(state *statestore.StateStore, locker lock.DistributedLock, spec string, retention time.Duration) *Janitor {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Janitor{
		cron:      cron.New(),
		state:     state,
		locker:    locker,
		spec:      spec,
		retention: retention,
		now:       time.Now,
	}
}

func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.spec, func() {
		if _, err := j.Sweep(context.Background()); err != nil {
			logger.Warn("[Janitor] 清理失败", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	j.cron.Start()
	logger.Info("[Janitor] started", zap.String("spec", j.spec), zap.Duration("retention", j.retention))
	return nil
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep 清除超过保留期的已完成记录, 返回是否清除
func (j *Janitor) Sweep(ctx context.Context) (bool, error) {
	// 1. 多实例共享存储时只允许一个执行
	if j.locker != nil {
		locked, err := j.locker.Acquire(ctx, janitorLockKey, 10*time.Second)
		if err != nil || !locked {
			logger.Debug("[Janitor] 获取锁失败或已有实例在运行")
			return false, err
		}
		defer j.locker.Release(ctx, janitorLockKey)
	}

	// 2. 只删除终态且过期的记录
	var cleared string
	err := j.state.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		cleared = ""
		if cur == nil || !cur.IsTerminal() || cur.CompletedAt == nil {
			return nil, store.ErrSkipWrite
		}
		if j.now().Sub(*cur.CompletedAt) < j.retention {
			return nil, store.ErrSkipWrite
		}
		cleared = cur.ID
		return nil, nil
	})
	if err != nil && !errors.Is(err, store.ErrSkipWrite) {
		return false, err
	}
	if cleared == "" {
		return false, nil
	}
	monitor.Business.JanitorClearedTotal.Inc()
	logger.Info("[Janitor] 已清除过期记录", zap.String("id", cleared))
	return true, nil
}
