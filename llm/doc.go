// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供工作流步骤调用大语言模型所需的最小接入层。

# 核心接口

  - [Provider]：LLM 提供者接口，提供 Completion / Stream / HealthCheck / Name
  - [Error]：带错误码、HTTP 状态与可重试标记的上游错误

# 子包

  - providers/openaicompat：OpenAI Chat Completions 兼容协议实现
  - tokenizer：tiktoken 计数与字符估算，用于补齐上游未返回的用量
*/
package llm
