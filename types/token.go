package types

import "strings"

// EstimateTokens 以空白分词估算文本 token 数，至少返回 1。
// 这是一个与后端真实分词无关的占位估算，仅用于展示/吞吐指标，
// 绝不参与任何正确性判断。
func EstimateTokens(text string) int {
	n := len(strings.Fields(text))
	if n < 1 {
		return 1
	}
	return n
}
