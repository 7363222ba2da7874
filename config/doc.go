// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 crewflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序加载，
// 环境变量统一使用 CREWFLOW_ 前缀，例如 CREWFLOW_LLM_API_KEY。
package config
