// Package main novelctl 命令行入口
package main

import (
	"os"

	"github.com/joho/godotenv"

	"ai-novel-orchestrator/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
