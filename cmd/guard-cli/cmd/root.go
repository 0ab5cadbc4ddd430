package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wallet-guard/internal/bootstrap"
	"wallet-guard/pkg/config"
	"wallet-guard/pkg/logger"
)

var jsonOutput bool

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "guard-cli",
	Short: "钱包调用守卫的运维命令行工具",
	Long: `直接读写守卫使用的存储 (store.driver 为 redis 时与服务共享),
查看当前请求, 代替弹窗继续 / 拒绝, 修改设置, 以及通过页面总线发起一次受保护的调用.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env, config.Global.App.LogLevel)
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
}

// withInfra 打开配置的基础设施并在结束后关闭
func withInfra(fn func(infra *bootstrap.Infra) error) error {
	infra, err := bootstrap.Open(config.Global)
	if err != nil {
		return err
	}
	defer infra.Close()
	return fn(infra)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
