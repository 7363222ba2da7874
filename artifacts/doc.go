// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 artifacts 为工作流步骤提供产物的存储、检索与持久化能力。

# 概述

产物（Artifact）是步骤之间交换数据的单元：每个步骤的模型输出都会以
产物的形式写入存储，后续步骤通过产物 ID 或标签解析自己的输入。
Manager 维护一个按插入顺序排列的内存索引，所有写操作在返回前都已由
后端持久化；启动时通过扫描后端重建索引。

# 核心接口

  - Manager：产物存取入口，提供 Store / Update / Get / ByType /
    ByTag / ByAgent / Search / List / Clear / Summary
  - Backend：可插拔持久化后端，定义 Save / LoadAll / Clear / Close
  - FileBackend：每个产物一个 JSON 文件，原子写入
  - RedisBackend：JSON 值 + 有序集合保持插入顺序
  - SQLBackend：基于 GORM 的关系型存储

# 使用方式

	backend, _ := artifacts.NewFileBackend("./project/context", logger)
	mgr, _ := artifacts.Open(ctx, backend, logger)
	a, _ := mgr.Store(ctx, "output", "agent-01-output", "...",
	    artifacts.WithCreatedBy("agent-01"),
	    artifacts.WithTags("agent-output", "agent-01"))
*/
package artifacts
