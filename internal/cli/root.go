// Package cli 实现 novelctl 命令行
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/pkg/logger"
)

// Version 构建时注入
var Version = "dev"

type rootOptions struct {
	configDir string
	logLevel  string
}

// NewRootCmd 创建 novelctl 命令树
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "novelctl",
		Short:         "本地运行小说生成流水线",
		Long:          `novelctl 在进程内执行一次完整的小说生成（大纲、分章写作、润色、评审），并把结果导出为 markdown、纯文本、知乎分篇或 JSON。`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger.InitWithWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", "configs", "配置目录（缺少 config.yaml 时使用默认值）")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "日志级别")

	root.AddCommand(newGenerateCmd(opts))
	root.AddCommand(newRenderCmd())
	root.AddCommand(newCatalogCmd())
	return root
}

// Execute 运行根命令
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig 加载配置并固定为单进程内存后端
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.LoadDir(dir, true)
	if err != nil {
		return nil, err
	}
	cfg.Store.Backend = "memory"
	cfg.Quota.Backend = "memory"
	cfg.Messaging.RedisStream.Enabled = false
	return cfg, nil
}

// writeOutput 写入文件，path 为空或 "-" 时写到 w
func writeOutput(path string, data []byte, w io.Writer) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
