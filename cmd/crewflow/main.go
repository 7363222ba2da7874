// =============================================================================
// CrewFlow 命令行入口
// =============================================================================
// 使用方法:
//
//	crewflow run <project>                  # 构建或恢复工作流并运行到结束
//	crewflow run <project> --dry-run        # 使用 echo 客户端演练
//	crewflow workflow build <project>       # 生成 workflow.json
//	crewflow workflow show <project>        # 打印工作流定义
//	crewflow workflow status <project>      # 查看进度
//	crewflow artifacts list <project>       # 列出产物
//	crewflow projects list                  # 列出项目
//	crewflow version                        # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
