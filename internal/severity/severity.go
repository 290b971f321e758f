// Package severity 根据票数和提交时间计算话题的 1-5 级严重度。
package severity

import (
	"math"
	"time"
)

const (
	Min = 1
	Max = 5

	// unknownAgeDays 创建时间缺失时按很久以前处理
	unknownAgeDays = 999
)

// AgeDays 返回 createdAt 距 now 的天数，零值时间返回 999，未来时间按 0 处理
func AgeDays(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return unknownAgeDays
	}
	days := now.Sub(createdAt).Hours() / 24
	return math.Max(0, days)
}

// Score 计算严重度：1 + log10(max(1,votes))*2 + 时效分，四舍五入并限制在 [1,5]
func Score(votes int, createdAt, now time.Time) int {
	voteScore := math.Log10(math.Max(1, float64(votes))) * 2

	ageDays := AgeDays(createdAt, now)
	recencyScore := 0.0
	switch {
	case ageDays <= 7:
		recencyScore = 2
	case ageDays <= 30:
		recencyScore = 1
	}

	raw := 1 + voteScore + recencyScore
	return clamp(roundHalfUp(raw), Min, Max)
}

// roundHalfUp .5 向正无穷方向取整，raw 恒为正数
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
