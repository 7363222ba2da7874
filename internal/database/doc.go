// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责按配置打开 GORM 数据库，并提供连接池管理、
健康检查与事务重试。SQL 产物后端通过这里拿到 *gorm.DB。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB。
  - PoolConfig：连接池配置，可由 config.DatabaseConfig 派生。
  - PoolStats：连接池统计信息。

# 驱动

postgres、mysql 使用 gorm 官方驱动；sqlite 使用 glebarez/sqlite
纯 Go 实现，CLI 构建无需 cgo。
*/
package database
