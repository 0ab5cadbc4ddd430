package popup

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"wallet-guard/internal/model"
	"wallet-guard/internal/statestore"
)

// ViewKind 弹窗当前展示的页面
type ViewKind string

const (
	ViewHome                  ViewKind = "home"
	ViewPending               ViewKind = "pending"
	ViewActionRequiredSuccess ViewKind = "action_required_success"
	ViewActionRequiredError   ViewKind = "action_required_error"
)

const (
	labelContinue = "Continue"
	labelSkip     = "Skip"
)

// View 弹窗渲染需要的全部数据
type View struct {
	Kind     ViewKind                 `json:"kind"`
	Settings statestore.Settings      `json:"settings"`
	Notice   *statestore.UpdateNotice `json:"notice,omitempty"`
	Request  *RequestView             `json:"request,omitempty"`
}

// RequestView 待确认请求的展示数据
type RequestView struct {
	ID          string            `json:"id"`
	Hostname    string            `json:"hostname"`
	Method      string            `json:"method"`
	ChainID     string            `json:"chainId"`
	Signer      string            `json:"signer"`
	PayloadKind model.PayloadKind `json:"payloadKind"`

	Transaction *TransactionView `json:"transaction,omitempty"`
	Message     string           `json:"message,omitempty"`
	Hash        string           `json:"hash,omitempty"`

	Simulation *model.Simulation   `json:"simulation,omitempty"`
	Events     []EventView         `json:"events,omitempty"`
	Error      *model.RequestError `json:"error,omitempty"`

	ContinueLabel string `json:"continueLabel"`
	Dangerous     bool   `json:"dangerous"`
}

// TransactionView 交易摘要, Value 以 ETH 为单位
type TransactionView struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Value string `json:"value"`
	Data  string `json:"data,omitempty"`
}

// EventView 代币事件, Amount 已按 decimals 换算
type EventView struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// BuildView 根据当前记录决定页面. 终态记录 (或没有记录) 展示首页.
func BuildView(req *model.Request, settings statestore.Settings, notice *statestore.UpdateNotice) View {
	v := View{Kind: ViewHome, Settings: settings, Notice: notice}
	if req == nil || !req.NeedsAction() {
		return v
	}

	rv := &RequestView{
		ID:          req.ID,
		Hostname:    req.Hostname,
		Method:      string(req.Args.Method),
		ChainID:     req.Args.ChainID,
		Signer:      req.Args.Signer,
		PayloadKind: req.Payload.Kind,
		Message:     req.Payload.Message,
		Hash:        req.Payload.Hash,
		Dangerous:   req.Args.Method == model.MethodEthSign,
	}
	if tx := req.Payload.Transaction; tx != nil {
		rv.Transaction = &TransactionView{From: tx.From, To: tx.To, Value: formatEther(tx.Value), Data: tx.Data}
	}
	v.Request = rv

	if req.State == model.StatePending || req.Response == nil {
		v.Kind = ViewPending
		rv.ContinueLabel = labelSkip
		return v
	}

	resp := req.Response
	switch {
	case resp.Success != nil:
		v.Kind = ViewActionRequiredSuccess
		rv.Simulation = resp.Success
		rv.Events = eventViews(resp.Success.Events)
		rv.ContinueLabel = labelContinue
		rv.Dangerous = rv.Dangerous || resp.Success.HasHighSeverity()
	case resp.Error != nil:
		v.Kind = ViewActionRequiredError
		rv.Error = resp.Error
		// revert 说明模拟确实执行了, 其他错误只能跳过
		if resp.Error.Kind == model.ErrorReverted {
			rv.ContinueLabel = labelContinue
		} else {
			rv.ContinueLabel = labelSkip
		}
	default:
		v.Kind = ViewActionRequiredError
		rv.Error = &model.RequestError{Kind: model.ErrorUnknown}
		rv.ContinueLabel = labelSkip
	}
	return v
}

// formatEther wei (0x 十六进制或十进制) -> ETH
func formatEther(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "0"
	}
	var amount decimal.Decimal
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		n, err := hexutil.DecodeBig(strings.ToLower(value))
		if err != nil {
			return value
		}
		amount = decimal.NewFromBigInt(n, 0)
	} else {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return value
		}
		amount = d
	}
	return amount.Shift(-18).String()
}

func eventViews(events []model.Event) []EventView {
	if len(events) == 0 {
		return nil
	}
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		ev := EventView{Type: e.Type}
		if e.Name != nil {
			ev.Name = *e.Name
		}
		if e.Amount != nil {
			ev.Amount = *e.Amount
			if d, err := decimal.NewFromString(*e.Amount); err == nil && e.Decimals != nil {
				ev.Amount = d.Shift(-*e.Decimals).String()
			}
		}
		out = append(out, ev)
	}
	return out
}
