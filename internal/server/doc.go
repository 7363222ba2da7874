// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 CLI 运行期间的 HTTP 服务生命周期，目前用于
暴露 Prometheus /metrics 端点。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，Start 非阻塞，
    Shutdown 在超时内排空请求。
  - Config：监听地址、请求头超时、写超时与关闭超时。

监听失败在 Start 中同步返回，运行期错误记录到日志。
*/
package server
