package algorithms

import (
	"image/color"
	"math"
)

// 코스트맵 색상 (낮음 → 높음 그라디언트)
var (
	CostLowColor     = color.RGBA{R: 0, G: 0, B: 255, A: 255}     // 파랑
	CostHighColor    = color.RGBA{R: 255, G: 0, B: 0, A: 255}     // 빨강
	CostNeutralColor = color.RGBA{R: 128, G: 128, B: 128, A: 255} // min == max 일 때
)

// CostColor - 코스트 값을 색상으로 변환
//
// [min, max] 구간으로 선형 정규화한 뒤 Low → High 채널별 보간.
// min >= max 이면 나눗셈 없이 중립 회색을 반환한다.
func CostColor(cost, minCost, maxCost float64) color.RGBA {
	if maxCost <= minCost || math.IsNaN(cost) {
		return CostNeutralColor
	}

	n := (cost - minCost) / (maxCost - minCost)
	n = math.Max(0, math.Min(1, n))

	return color.RGBA{
		R: lerpChannel(CostLowColor.R, CostHighColor.R, n),
		G: lerpChannel(CostLowColor.G, CostHighColor.G, n),
		B: lerpChannel(CostLowColor.B, CostHighColor.B, n),
		A: 255,
	}
}

func lerpChannel(low, high uint8, n float64) uint8 {
	v := float64(low) + (float64(high)-float64(low))*n
	return uint8(math.Floor(v))
}
