// Package popup 是用户确认界面背后的服务.
//
// 它只写终态记录 (继续 / 拒绝) 和更新提示的确认, 其余状态由 coordinator 维护.
package popup

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"wallet-guard/internal/model"
	"wallet-guard/internal/statestore"
	"wallet-guard/internal/windows"
	"wallet-guard/pkg/errno"
	"wallet-guard/pkg/logger"
)

type Service struct {
	state   *statestore.StateStore
	windows windows.Manager
	log     *zap.Logger
	now     func() time.Time
}

func NewService(state *statestore.StateStore, wm windows.Manager) *Service {
	return &Service{
		state:   state,
		windows: wm,
		log:     logger.Named("popup"),
		now:     time.Now,
	}
}

// View 当前应展示的页面
func (s *Service) View(ctx context.Context) (View, error) {
	req, err := s.state.Current(ctx)
	if err != nil {
		return View{}, err
	}
	settings, err := s.state.Settings(ctx)
	if err != nil {
		return View{}, err
	}
	notice, err := s.state.Notice(ctx)
	if err != nil {
		return View{}, err
	}
	return BuildView(req, settings, notice), nil
}

// Continue 用户选择继续 (标签可能是 Skip, 动作都是 resolve)
func (s *Service) Continue(ctx context.Context, id string, windowID int) error {
	return s.complete(ctx, id, windowID, model.ActionResolve, nil)
}

// Reject 用户拒绝
func (s *Service) Reject(ctx context.Context, id string, windowID int) error {
	result := errno.ErrUserRejectedPopup
	return s.complete(ctx, id, windowID, model.ActionReject, &result)
}

func (s *Service) complete(ctx context.Context, id string, windowID int, action model.Action, result *errno.Errno) error {
	// 1. 只能完成当前这条未完成的记录
	err := s.state.UpdateRequest(ctx, func(cur *model.Request) (*model.Request, error) {
		if cur == nil {
			return nil, errno.ErrRequestNotFound
		}
		if cur.ID != id {
			return nil, errno.ErrStaleRequest.WithMessage("request %s is no longer current", id)
		}
		if cur.IsTerminal() {
			return nil, errno.ErrAlreadyCompleted
		}
		next := cur.Complete(action, result, s.now())
		return &next, nil
	})
	if err != nil {
		return err
	}
	s.log.Info("[Popup] 用户已处理请求", zap.String("id", id), zap.String("action", string(action)))

	// 2. 关闭自己的窗口; coordinator 可能已经关掉了
	if windowID > 0 {
		if err := s.windows.Remove(ctx, windowID); err != nil && !errors.Is(err, errno.ErrWindowNotFound) {
			s.log.Warn("[Popup] 关闭窗口失败", zap.Int("windowId", windowID), zap.Error(err))
		}
	}
	return nil
}

// DismissUpdate 确认更新提示
func (s *Service) DismissUpdate(ctx context.Context) error {
	return s.state.DismissNotice(ctx)
}

// UpdateSettings 首页的开关
func (s *Service) UpdateSettings(ctx context.Context, settings statestore.Settings) error {
	if err := s.state.SetSettings(ctx, settings); err != nil {
		return err
	}
	s.log.Info("[Popup] 设置已更新", zap.Bool("disable", settings.Disable), zap.Bool("skipKnownMarketplaces", settings.SkipKnownMarketplaces))
	return nil
}
