package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ai-novel-orchestrator/internal/application/render"
	"ai-novel-orchestrator/internal/domain/entity"
)

func newRenderCmd() *cobra.Command {
	var in, format, out string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "把保存的任务 JSON 导出为其他格式",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := render.ParseFormat(format)
			if err != nil {
				return err
			}
			task, err := readTask(in)
			if err != nil {
				return err
			}
			body, err := render.Render(task, f)
			if err != nil {
				return err
			}
			return writeOutput(out, body, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&in, "in", "i", "", "generate --save 输出的任务文件")
	cmd.Flags().StringVar(&format, "format", "markdown", "导出格式 markdown|plain|zhihu|json")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "输出文件，- 表示标准输出")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func readTask(path string) (*entity.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task: %w", err)
	}
	var task entity.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", path, err)
	}
	return &task, nil
}
