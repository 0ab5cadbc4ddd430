package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"wallet-guard/internal/bootstrap"
	"wallet-guard/internal/model"
)

var (
	disableFlag          bool
	skipMarketplacesFlag bool
)

// settingsCmd 查看或修改设置; 不带标志时只打印
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "查看或修改用户设置",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInfra(func(infra *bootstrap.Infra) error {
			ctx := cmd.Context()
			settings, err := infra.State.Settings(ctx)
			if err != nil {
				return err
			}

			changed := false
			if cmd.Flags().Changed("disable") {
				settings.Disable = disableFlag
				changed = true
			}
			if cmd.Flags().Changed("skip-marketplaces") {
				settings.SkipKnownMarketplaces = skipMarketplacesFlag
				changed = true
			}
			if changed {
				if err := infra.State.SetSettings(ctx, settings); err != nil {
					return err
				}
			}

			if jsonOutput {
				return printJSON(settings)
			}
			fmt.Printf("模拟已关闭:         %v\n", settings.Disable)
			fmt.Printf("跳过官方市场交易:   %v\n", settings.SkipKnownMarketplaces)
			return nil
		})
	},
}

// clientIDCmd 打印持久化的客户端 ID, 不存在时生成
var clientIDCmd = &cobra.Command{
	Use:   "client-id",
	Short: "查看客户端 ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withInfra(func(infra *bootstrap.Infra) error {
			id, err := infra.State.ClientID(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

// fingerprintCmd 计算调用参数的指纹 (不需要存储)
var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <args-json>",
	Short: "计算请求参数指纹",
	Long:  `参数为 {"chainId","method","params","options"} 形式的 JSON, 签名者不参与指纹.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var req model.RequestArgs
		if err := unmarshalArg(args[0], &req); err != nil {
			return err
		}
		fp, err := model.Fingerprint(req)
		if err != nil {
			return err
		}
		fmt.Println(fp)
		return nil
	},
}

func init() {
	settingsCmd.Flags().BoolVar(&disableFlag, "disable", false, "关闭模拟")
	settingsCmd.Flags().BoolVar(&skipMarketplacesFlag, "skip-marketplaces", false, "跳过发往官方市场合约的交易")
	rootCmd.AddCommand(settingsCmd, clientIDCmd, fingerprintCmd)
}
