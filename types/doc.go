// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 crewflow 各模块共享的基础类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、artifacts、
persistence、llm 等上层模块提供统一的错误码与 Token 用量契约，
以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误，含错误码、Retryable 标记与 Cause 链
  - TokenUsage        — 单次模型调用的 Token 消耗统计，可累加

# 主要能力

  - 错误工具链：NewError / WithCause / IsErrorCode / GetErrorCode / IsRetryable
  - 工作流错误：图结构校验、步骤资格、Agent 提示词缺失、工作流停滞
*/
package types
