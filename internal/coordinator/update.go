package coordinator

import (
	"context"

	"go.uber.org/zap"

	"wallet-guard/internal/statestore"
)

// CheckForUpdate 拉取当前版本的更新提示.
// 用户已确认过该版本, 或已有同版本提示时不再拉取.
func (c *Coordinator) CheckForUpdate(ctx context.Context) error {
	version := c.opts.Version
	lastSeen, err := c.state.LastSeenVersion(ctx)
	if err != nil {
		return err
	}
	if lastSeen == version {
		return nil
	}
	notice, err := c.state.Notice(ctx)
	if err != nil {
		return err
	}
	if notice != nil && notice.Version == version {
		return nil
	}

	update, err := c.sim.FetchUpdate(ctx, version)
	if err != nil {
		return err
	}
	if update == nil || update.Message == "" {
		return nil
	}
	c.log.Info("[Coordinator] 有新的更新提示", zap.String("version", version), zap.String("link", update.Link))
	return c.state.SetNotice(ctx, statestore.UpdateNotice{
		Version: version,
		Message: update.Message,
		Link:    update.Link,
	})
}
