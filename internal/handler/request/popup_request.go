package request

// PopupActionRequest 继续 / 拒绝, WindowID 为发起操作的窗口
type PopupActionRequest struct {
	ID       string `json:"id" binding:"required,requestid"`
	WindowID int    `json:"windowId" binding:"min=0"`
}

// SettingsRequest 首页开关
type SettingsRequest struct {
	Disable               bool `json:"disable"`
	SkipKnownMarketplaces bool `json:"skipKnownMarketplaces"`
}
