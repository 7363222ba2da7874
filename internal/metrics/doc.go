// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的工作流指标采集能力，覆盖
步骤执行、工作流运行、产物存储与 LLM 请求四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
Collector 实现 workflow.Observer，直接挂到 Runner 上即可。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等向量指标。
  - InstrumentProvider：包装 llm.Provider，记录请求数、耗时与 Token 用量。

# 主要能力

  - 步骤指标：执行总数（success/failure）、耗时、Token 用量、进行中数量，
    按 agent_id 分组。
  - 运行指标：按 outcome 统计运行次数，运行耗时。
  - 产物指标：按 agent_id 统计存储的产物数。
  - LLM 指标：请求总数、耗时、Token 用量，按 provider/model 分组。
*/
package metrics
