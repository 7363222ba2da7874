// Package tokenizer 为工作流步骤补齐 Token 用量。
//
// 上游未返回 usage 时，ProviderClient 通过 [ForModel] 选择 tiktoken 编码计数，
// 无匹配编码的模型退回 CJK 感知的字符估算器。
package tokenizer
