// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供工作流状态（调度快照）的持久化存储及多后端实现。

# 概述

Runner 在每个步骤结束后调用 SaveWorkflow 落盘当前的 workflow.Definition，
进程重启后通过 LoadWorkflow 恢复调度器，已完成的步骤不会重复执行。

# 核心接口

  - Store: 所有存储的基础接口，提供 Close 和 Ping 健康检查。
  - StateStore: 工作流状态存储，支持保存、加载、列举与删除。
    StateStore 满足 workflow.Checkpointer。

# 后端实现

  - Memory: 内存实现，适合开发与测试，重启后数据丢失。
  - File: 每个工作流一个 JSON 文件，临时文件 + 重命名原子写入，适合单节点部署。
  - Redis: 基于 Redis 的实现，String 存储快照、Sorted Set 维护索引，
    适合多进程共享状态。

# 使用方式

	store, err := persistence.NewStateStore(config)
	runner := workflow.NewRunner(sched, client, artifacts,
		workflow.WithCheckpointer(store), workflow.WithWorkflowID("demo"))
*/
package persistence
