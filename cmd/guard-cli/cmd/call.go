package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wallet-guard/internal/bootstrap"
	"wallet-guard/internal/interceptor"
	"wallet-guard/internal/transport"
	"wallet-guard/pkg/bus"
	"wallet-guard/pkg/config"
)

var (
	callRPC      string
	callHostname string
	callMethod   string
	callParams   string
	callSocket   bool
	callChain    string
	callAccounts []string
)

// staticSession 命令行给出的远程钱包会话
type staticSession interceptor.Session

func (s staticSession) Session() (interceptor.Session, bool) {
	return interceptor.Session(s), s.ChainID != ""
}

// callCmd 扮演页面: 通过页面总线向 relay 请求裁决, 放行后转发给节点.
// 需要与服务共享 bus (redis / nats) 与 store.
var callCmd = &cobra.Command{
	Use:   "call",
	Short: "以页面身份发起一次受保护的钱包调用",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var params json.RawMessage
		if callParams != "" {
			if err := unmarshalArg(callParams, &params); err != nil {
				return err
			}
		}

		return withInfra(func(infra *bootstrap.Infra) error {
			page := bus.Scoped(infra.Bus, bus.PageScope(callHostname))

			// 1. 页面侧 transport, 同时应答 relay 的在线检查
			sender, err := transport.NewSender(page, transport.ToContent)
			if err != nil {
				return err
			}
			defer sender.Close()
			receiver, err := transport.NewReceiver(page, transport.ToInjected,
				transport.Handle(transport.Health, func(_ context.Context, name string) (string, error) {
					return fmt.Sprintf("hello %s from injected", name), nil
				}))
			if err != nil {
				return err
			}
			defer receiver.Close()

			// 2. 钱包 provider
			wallet, closeWallet, err := interceptor.DialRPCProvider(ctx, callRPC)
			if err != nil {
				return err
			}
			defer closeWallet()

			guard := interceptor.NewGuard(transport.NewClient(sender), config.Global.Guard.VerdictTimeout)
			if callSocket {
				return callOverSocket(ctx, guard, wallet, params)
			}

			// 3. 钱包放进页面变量, 由 watcher 包装
			slot := interceptor.NewSlot(wallet)
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go interceptor.NewWatcher(guard, slot, config.Global.Guard.DiscoveryInterval, config.Global.Guard.DiscoveryGrace).Run(watchCtx)
			if err := awaitGuarded(ctx, slot); err != nil {
				return err
			}

			fmt.Printf("正在请求 %s (%s) ...\n", callMethod, callHostname)
			result, err := slot.Load().Request(ctx, interceptor.RPCRequest{Method: callMethod, Params: params})
			if err != nil {
				return fmt.Errorf("调用失败: %w", err)
			}
			fmt.Printf("结果: %s\n", string(result))
			return nil
		})
	},
}

// awaitGuarded 等待 watcher 完成第一次安装
func awaitGuarded(ctx context.Context, slot interceptor.Slot) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !interceptor.IsGuarded(slot.Load()) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// callOverSocket 把调用编码成 WebSocket 帧交给 SocketGuard, 放行后才发给节点
func callOverSocket(ctx context.Context, guard *interceptor.Guard, wallet interceptor.Provider, params json.RawMessage) error {
	frame, err := json.Marshal(interceptor.RPCRequest{
		ID:      json.RawMessage(`1`),
		JSONRPC: "2.0",
		Method:  callMethod,
		Params:  params,
	})
	if err != nil {
		return err
	}

	socket := interceptor.NewSocketGuard(guard, staticSession{ChainID: callChain, Accounts: callAccounts})
	fmt.Printf("正在通过 WebSocket 会话请求 %s (%s) ...\n", callMethod, callHostname)
	forward, reply := socket.Outgoing(ctx, frame)
	if !forward {
		if reply == nil {
			return ctx.Err()
		}
		fmt.Printf("钱包响应: %s\n", string(reply))
		return nil
	}

	result, err := wallet.Request(ctx, interceptor.RPCRequest{Method: callMethod, Params: params})
	if err != nil {
		return fmt.Errorf("调用失败: %w", err)
	}
	fmt.Printf("结果: %s\n", string(result))
	return nil
}

func init() {
	callCmd.Flags().StringVar(&callRPC, "rpc", "http://localhost:8545", "钱包 / 节点 JSON-RPC 地址")
	callCmd.Flags().StringVar(&callHostname, "hostname", "localhost", "页面 hostname")
	callCmd.Flags().StringVar(&callMethod, "method", "personal_sign", "JSON-RPC 方法")
	callCmd.Flags().StringVar(&callParams, "params", "", "JSON 数组形式的参数")
	callCmd.Flags().BoolVar(&callSocket, "socket", false, "模拟经 WebSocket 连接的远程钱包")
	callCmd.Flags().StringVar(&callChain, "chain", "0x1", "远程钱包会话的链 ID (--socket)")
	callCmd.Flags().StringSliceVar(&callAccounts, "account", nil, "远程钱包会话的账户 (--socket)")
	rootCmd.AddCommand(callCmd)
}

func unmarshalArg(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("参数不是合法的 JSON: %w", err)
	}
	return nil
}
