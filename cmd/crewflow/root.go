package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/config"
)

// cli 持有所有子命令共享的状态，由 PersistentPreRunE 填充
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "crewflow",
		Short: "CrewFlow - dependency-driven workflows for agent teams",
		Long: `CrewFlow turns a project's agent team into a dependency graph
(sequential, parallel or iterative), runs every step whose dependencies
are complete through a language model and shares step outputs as
artifacts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "log format override (json, console)")

	root.Version = Version
	root.SetVersionTemplate("crewflow {{.Version}}\n")

	root.AddCommand(
		newRunCmd(c),
		newWorkflowCmd(c),
		newArtifactsCmd(c),
		newProjectsCmd(c),
		newVersionCmd(),
	)
	return root
}

// setup 加载配置并初始化 logger
func (c *cli) setup() error {
	loader := config.NewLoader()
	if c.configPath != "" {
		loader = loader.WithConfigPath(c.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

// projectDir 解析项目参数：已存在的目录直接使用，否则视为 project.root 下的项目名
func (c *cli) projectDir(arg string) string {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg
	}
	return filepath.Join(c.cfg.Project.Root, arg)
}
