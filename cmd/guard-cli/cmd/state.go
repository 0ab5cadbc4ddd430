package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-guard/internal/bootstrap"
	"wallet-guard/internal/popup"
	"wallet-guard/internal/windows"
)

// stateCmd 打印当前请求记录
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "查看当前请求记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInfra(func(infra *bootstrap.Infra) error {
			req, err := infra.State.Current(cmd.Context())
			if err != nil {
				return err
			}
			if req == nil {
				fmt.Println("当前没有请求")
				return nil
			}
			if jsonOutput {
				return printJSON(req)
			}
			fmt.Println("---------------------------------------------------")
			fmt.Printf("ID:       %s\n", req.ID)
			fmt.Printf("Hostname: %s\n", req.Hostname)
			fmt.Printf("Method:   %s\n", req.Args.Method)
			fmt.Printf("Chain:    %s\n", req.Args.ChainID)
			fmt.Printf("State:    %s\n", req.State)
			if req.Action != "" {
				fmt.Printf("Action:   %s\n", req.Action)
			}
			if req.Response != nil && req.Response.Error != nil {
				fmt.Printf("Error:    %s %s\n", req.Response.Error.Kind, req.Response.Error.Message)
			}
			fmt.Println("---------------------------------------------------")
			return nil
		})
	},
}

// resolveCmd 代替弹窗继续
var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "继续当前请求",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInfra(func(infra *bootstrap.Infra) error {
			svc := popup.NewService(infra.State, windows.NewRegistry())
			if err := svc.Continue(cmd.Context(), args[0], 0); err != nil {
				return err
			}
			fmt.Printf("✅ 请求 %s 已继续\n", args[0])
			return nil
		})
	},
}

// rejectCmd 代替弹窗拒绝
var rejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "拒绝当前请求",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInfra(func(infra *bootstrap.Infra) error {
			svc := popup.NewService(infra.State, windows.NewRegistry())
			if err := svc.Reject(cmd.Context(), args[0], 0); err != nil {
				return err
			}
			fmt.Printf("⛔ 请求 %s 已拒绝\n", args[0])
			return nil
		})
	},
}

// clearCmd 删除当前请求记录, 用于卡住的记录
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "删除当前请求记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInfra(func(infra *bootstrap.Infra) error {
			if err := infra.State.ClearRequest(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("🧹 当前请求记录已删除")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(stateCmd, resolveCmd, rejectCmd, clearCmd)
}
