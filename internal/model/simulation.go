package model

// Severity 告警级别
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Alert 模拟服务检测到的风险
type Alert struct {
	Kind         string   `json:"kind"`
	Msg          string   `json:"msg"`
	SecondaryMsg *string  `json:"secondary_msg,omitempty"`
	Severity     Severity `json:"severity"`
}

type AssetMetadata struct {
	Icon          string  `json:"icon"`
	Name          string  `json:"name"`
	SecondaryLine *string `json:"secondaryLine,omitempty"`
	URL           *string `json:"url,omitempty"`
	Verified      bool    `json:"verified"`
}

// AssetChange 一项资产变动
type AssetChange struct {
	Action   string        `json:"action"`
	Color    string        `json:"color"` // red / white / green
	Metadata AssetMetadata `json:"metadata"`
}

type AddressInfo struct {
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// ToAddressInfo 交互的合约或授权对象
type ToAddressInfo struct {
	Address      string       `json:"address"`
	Description  string       `json:"description"`
	EtherscanURL string       `json:"etherscanUrl"`
	Info         *AddressInfo `json:"info,omitempty"`
}

// Event 代币事件 (转入 / 转出 / 授权)
type Event struct {
	Type                string  `json:"type"`
	TokenType           string  `json:"tokenType"`
	Name                *string `json:"name,omitempty"`
	Image               *string `json:"image,omitempty"`
	Amount              *string `json:"amount,omitempty"` // 最小单位整数
	Decimals            *int32  `json:"decimals,omitempty"`
	ToAddress           string  `json:"toAddress,omitempty"`
	VerifiedAddressName string  `json:"verifiedAddressName,omitempty"`
	Verified            bool    `json:"verified,omitempty"`
	CollectionURL       string  `json:"collection_url,omitempty"`
}

// Simulation 模拟服务返回的结果, 不同 type 只填充部分字段
type Simulation struct {
	Type         string         `json:"type,omitempty"` // assets / revertedSimulation / safePersonalSign / ethSign ...
	Alerts       []Alert        `json:"alerts,omitempty"`
	AssetChanges []AssetChange  `json:"assetChanges,omitempty"`
	To           *ToAddressInfo `json:"to,omitempty"`
	Message      *string        `json:"message,omitempty"`

	Date                int64   `json:"date,omitempty"`
	Events              []Event `json:"events,omitempty"`
	VerifiedAddressName string  `json:"verifiedAddressName,omitempty"`
	ToAddress           string  `json:"toAddress,omitempty"`
	ShouldWarn          bool    `json:"shouldWarn,omitempty"`
	MustWarn            bool    `json:"mustWarn,omitempty"`
	MustWarnMessage     string  `json:"mustWarnMessage,omitempty"`
}

// HasHighSeverity 是否包含高危告警
func (s *Simulation) HasHighSeverity() bool {
	if s == nil {
		return false
	}
	if s.MustWarn {
		return true
	}
	for _, a := range s.Alerts {
		if a.Severity == SeverityHigh {
			return true
		}
	}
	return false
}
