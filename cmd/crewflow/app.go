package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/artifacts"
	"github.com/BaSui01/crewflow/internal/database"
	"github.com/BaSui01/crewflow/internal/metrics"
	"github.com/BaSui01/crewflow/internal/server"
	"github.com/BaSui01/crewflow/llm/providers/openaicompat"
	"github.com/BaSui01/crewflow/persistence"
	"github.com/BaSui01/crewflow/project"
	"github.com/BaSui01/crewflow/team"
	"github.com/BaSui01/crewflow/workflow"
)

// =============================================================================
// 🔌 资源装配
// =============================================================================

// session 是一次命令执行期间打开的项目资源
type session struct {
	project   *project.Project
	artifacts *artifacts.Manager
	state     persistence.StateStore
	closers   []func() error
}

// Close 按打开的逆序释放资源
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (c *cli) loadProject(arg string) (*project.Project, error) {
	return project.Load(c.projectDir(arg))
}

// openSession 加载项目并打开产物与状态存储
func (c *cli) openSession(ctx context.Context, arg string) (_ *session, err error) {
	p, err := c.loadProject(arg)
	if err != nil {
		return nil, err
	}
	s := &session{project: p}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	var rdb redis.UniversalClient
	if c.cfg.Artifacts.Backend == string(artifacts.BackendRedis) || c.cfg.State.Type == string(persistence.StoreTypeRedis) {
		rdb = redis.NewClient(&redis.Options{
			Addr:         c.cfg.Redis.Addr,
			Password:     c.cfg.Redis.Password,
			DB:           c.cfg.Redis.DB,
			PoolSize:     c.cfg.Redis.PoolSize,
			MinIdleConns: c.cfg.Redis.MinIdleConns,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", c.cfg.Redis.Addr, err)
		}
	}

	conns := artifacts.Connections{}
	switch artifacts.BackendType(c.cfg.Artifacts.Backend) {
	case artifacts.BackendRedis:
		conns.Redis = rdb
	case artifacts.BackendSQL:
		pool, err := database.Open(c.cfg.Database, c.logger)
		if err != nil {
			return nil, err
		}
		conns.Pool = pool
	}
	// 产物后端接管 redis 客户端时由 Manager.Close 关闭，否则单独关闭
	if rdb != nil && conns.Redis == nil {
		s.closers = append(s.closers, rdb.Close)
	}

	backend, err := artifacts.NewBackend(artifacts.BackendConfig{
		Type:      artifacts.BackendType(c.cfg.Artifacts.Backend),
		Dir:       p.Path(c.cfg.Artifacts.Dir),
		KeyPrefix: c.cfg.Artifacts.KeyPrefix + ":" + p.ID() + ":",
		ProjectID: p.ID(),
	}, conns, c.logger)
	if err != nil {
		if conns.Redis != nil {
			_ = rdb.Close()
		}
		if conns.Pool != nil {
			_ = conns.Pool.Close()
		}
		return nil, err
	}
	s.artifacts, err = artifacts.Open(ctx, backend, c.logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	s.closers = append(s.closers, s.artifacts.Close)

	switch persistence.StoreType(c.cfg.State.Type) {
	case persistence.StoreTypeRedis:
		s.state = persistence.NewRedisStateStoreWithClient(rdb, c.cfg.State.KeyPrefix)
	default:
		s.state, err = persistence.NewStateStore(persistence.StoreConfig{
			Type:    persistence.StoreType(c.cfg.State.Type),
			BaseDir: p.Path(c.cfg.State.BaseDir),
		})
		if err != nil {
			return nil, err
		}
	}
	s.closers = append(s.closers, s.state.Close)

	return s, nil
}

// composer 返回按配置加载能力库的团队组建器
func (c *cli) composer() (*team.Composer, error) {
	if c.cfg.Project.CapabilitiesDir == "" {
		return team.NewComposer(nil), nil
	}
	lib, err := team.LoadLibrary(c.cfg.Project.CapabilitiesDir)
	if err != nil {
		return nil, err
	}
	return team.NewComposer(lib), nil
}

// buildScheduler 从项目团队构建新的工作流
func (c *cli) buildScheduler(p *project.Project, patternFlag string) (*workflow.Scheduler, error) {
	fallback := c.cfg.Workflow.Pattern
	if patternFlag != "" {
		fallback = patternFlag
		p.Pattern = ""
	}
	pattern, err := p.PatternOr(fallback)
	if err != nil {
		return nil, err
	}

	composer, err := c.composer()
	if err != nil {
		return nil, err
	}
	agents, comp := p.Team(composer)
	if comp != nil {
		for _, gap := range comp.Gaps {
			c.logger.Warn("capability gap", zap.String("project", p.Name), zap.String("gap", gap))
		}
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("project %s has no agents: list agents or required capabilities", p.Name)
	}

	g, err := workflow.Build(agents, p.Phases, pattern)
	if err != nil {
		return nil, err
	}
	return workflow.NewScheduler(g), nil
}

// =============================================================================
// 🤖 模型客户端
// =============================================================================

func (c *cli) modelClient(dryRun bool, collector *metrics.Collector) workflow.ModelClient {
	if dryRun {
		return workflow.EchoClient{}
	}
	llmCfg := c.cfg.LLM
	if llmCfg.APIKey == "" {
		c.logger.Warn("llm.api_key is empty, requests are sent without authorization",
			zap.String("base_url", llmCfg.BaseURL))
	}

	provider := openaicompat.New(openaicompat.Config{
		ProviderName: llmCfg.Provider,
		APIKey:       llmCfg.APIKey,
		BaseURL:      llmCfg.BaseURL,
		DefaultModel: llmCfg.Model,
		Timeout:      llmCfg.Timeout,
	}, c.logger)

	return workflow.NewProviderClient(metrics.InstrumentProvider(provider, collector),
		workflow.WithRateLimit(llmCfg.RateLimitRPS, llmCfg.RateLimitBurst),
		workflow.WithSystemPrompt(llmCfg.SystemPrompt),
		workflow.WithClientLogger(c.logger),
	)
}

func (c *cli) executionOptions() workflow.ExecutionOptions {
	return workflow.ExecutionOptions{
		Model:       c.cfg.LLM.Model,
		MaxTokens:   c.cfg.LLM.MaxTokens,
		Temperature: float32(c.cfg.LLM.Temperature),
		Streaming:   c.cfg.LLM.Streaming,
		Timeout:     c.cfg.LLM.Timeout,
	}
}

// =============================================================================
// 📊 指标服务
// =============================================================================

// startMetrics 注册收集器并在 metrics.addr 上暴露 /metrics。未启用时收集器为 nil。
func (c *cli) startMetrics() (*metrics.Collector, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !c.cfg.Metrics.Enabled {
		return nil, noop, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollectorWith(reg, c.cfg.Metrics.Namespace, c.logger)

	cfg := server.DefaultConfig()
	cfg.Addr = c.cfg.Metrics.Addr
	srv := server.NewMetricsManager(reg, cfg, c.logger)
	if err := srv.Start(); err != nil {
		return nil, noop, fmt.Errorf("start metrics server: %w", err)
	}
	return collector, srv.Shutdown, nil
}
