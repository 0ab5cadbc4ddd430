package relay

import (
	"context"
	"encoding/json"
	"strings"

	"wallet-guard/internal/model"
)

// 跳过原因, 同时作为指标标签
const (
	skipUnsupportedChain = "unsupported_chain"
	skipDisabled         = "disabled"
	skipMarketplace      = "known_marketplace"
)

// Policy 本地跳过策略, 在任何网络调用之前执行
type Policy struct {
	chains       map[string]struct{}
	marketplaces map[string]struct{}
}

func NewPolicy(supportedChains, knownMarketplaces []string) *Policy {
	p := &Policy{
		chains:       make(map[string]struct{}, len(supportedChains)),
		marketplaces: make(map[string]struct{}, len(knownMarketplaces)),
	}
	for _, c := range supportedChains {
		p.chains[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	for _, m := range knownMarketplaces {
		p.marketplaces[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return p
}

// SupportedChain 链 ID 比较不区分大小写
func (p *Policy) SupportedChain(chainID string) bool {
	_, ok := p.chains[strings.ToLower(strings.TrimSpace(chainID))]
	return ok
}

// KnownMarketplace 交易的 to 是否是白名单市场合约
func (p *Policy) KnownMarketplace(args model.RequestArgs) bool {
	if args.Method != model.MethodSendTransaction {
		return false
	}
	params := args.ParamList()
	if len(params) == 0 {
		return false
	}
	var tx struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(params[0], &tx); err != nil || tx.To == "" {
		return false
	}
	_, ok := p.marketplaces[strings.ToLower(tx.To)]
	return ok
}

// ShouldSkip 返回是否跳过以及原因
func (r *Relay) ShouldSkip(ctx context.Context, args model.RequestArgs) (bool, string, error) {
	// 1. 不支持的链
	if !r.policy.SupportedChain(args.ChainID) {
		return true, skipUnsupportedChain, nil
	}

	settings, err := r.state.Settings(ctx)
	if err != nil {
		return false, "", err
	}

	// 2. 用户关闭了模拟
	if settings.Disable {
		return true, skipDisabled, nil
	}

	// 3. 打开了跳过已知市场, 且交易发往白名单合约
	if settings.SkipKnownMarketplaces && r.policy.KnownMarketplace(args) {
		return true, skipMarketplace, nil
	}
	return false, "", nil
}
