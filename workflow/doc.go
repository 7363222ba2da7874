// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供多智能体协作的工作流依赖引擎。

# 概述

workflow 包根据团队成员（Agent）与有序阶段列表构建带依赖关系的步骤图，
由调度器计算当前可执行的步骤集合，再由运行器逐步调用模型客户端、
将输出写入产物存储，并汇总执行统计。支持顺序、按阶段并行、
迭代评审三种编排模式。

# 核心接口与类型

  - Step / Graph       — 不可变步骤与依赖图（步骤状态不在 Step 上）
  - GraphBuilder       — Fluent API 构建依赖图（含重复 ID、悬空依赖与环检测）
  - Build              — 按 sequential / parallel / iterative 模式生成依赖图
  - Scheduler          — 持有 step id → 状态映射，计算可执行集合与进度
  - Runner             — 驱动调度器、调用 ModelClient、存储产物、汇总统计
  - ModelClient        — 模型调用抽象（ProviderClient / EchoClient）
  - PromptSource       — Agent 提示词来源（DirPromptSource 读取 agents/<id>.md）
  - Definition         — 工作流持久化形态，支持 JSON / YAML 导入导出

# 主要能力

  - 状态迁移：pending → in-progress → completed | failed，终态不可离开
  - 停滞检测：无可执行步骤且未全部完成时返回 OutcomeStalled
  - 有界并发：RunOptions.MaxParallel > 1 时按启动顺序汇总结果
  - 可观测性：Observer 指标回调、OpenTelemetry span、Checkpointer 状态快照
*/
package workflow
