package algorithms

import "math"

// Point - 2D 좌표 (월드 단위 또는 픽셀)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform - 월드 좌표 → 래스터 픽셀 좌표 어파인 변환
//
// 캔버스 Y축은 아래로, 월드 Y축은 위로 증가하므로 Y를 뒤집는다.
//
//	px = OffsetX + PixelsPerUnit * x
//	py = OffsetY - PixelsPerUnit * y
type Transform struct {
	OffsetX       float64 `json:"pixel_offset_x"`
	OffsetY       float64 `json:"pixel_offset_y"`
	PixelsPerUnit float64 `json:"pixels_per_meter"`
}

// Valid - 역변환 가능 여부 (스케일이 0이 아닌 유한값)
func (t Transform) Valid() bool {
	s := t.PixelsPerUnit
	return s != 0 && !math.IsNaN(s) && !math.IsInf(s, 0)
}

// ToPixel - 월드 좌표 → 래스터 픽셀 좌표
func (t Transform) ToPixel(world Point) Point {
	return Point{
		X: t.OffsetX + t.PixelsPerUnit*world.X,
		Y: t.OffsetY - t.PixelsPerUnit*world.Y,
	}
}

// ToWorld - 래스터 픽셀 좌표 → 월드 좌표 (ToPixel의 역변환)
func (t Transform) ToWorld(pixel Point) Point {
	return Point{
		X: (pixel.X - t.OffsetX) / t.PixelsPerUnit,
		Y: (t.OffsetY - pixel.Y) / t.PixelsPerUnit,
	}
}

// FitCanvas - 컨테이너 크기에 맞춰 캔버스 버퍼 크기 계산
//
// 래스터 크기를 알면 종횡비를 유지한다: 먼저 너비에 맞추고,
// 높이가 컨테이너를 넘으면 높이에 맞춘 뒤 너비를 다시 계산한다.
// 래스터 크기를 모르면 컨테이너 크기를 그대로 쓴다.
func FitCanvas(containerW, containerH, rasterW, rasterH int) (int, int) {
	if containerW <= 0 || containerH <= 0 {
		return max(containerW, 0), max(containerH, 0)
	}
	if rasterW <= 0 || rasterH <= 0 {
		return containerW, containerH
	}

	aspect := float64(rasterH) / float64(rasterW)
	w := float64(containerW)
	h := w * aspect
	if h > float64(containerH) {
		h = float64(containerH)
		w = h / aspect
	}

	return max(int(math.Round(w)), 1), max(int(math.Round(h)), 1)
}

// Yaw - 쿼터니언 → 요(heading, 라디안)
//
// 로봇이 거의 평면 위에 있다고 가정하고 z축 회전만 추출한다.
func Yaw(x, y, z, w float64) float64 {
	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	return math.Atan2(sinyCosp, cosyCosp)
}
