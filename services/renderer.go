package services

import (
	"image"
	"image/color"
	"math"

	"costmap-backend/algorithms"
	"costmap-backend/models"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// 마커 크기 하한 (픽셀)
const MinMarkerSize = 3.0

// 오버레이 색상
var (
	ColorPlaceholder   = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	ColorPlaceholderTx = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	ColorErrorText     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorPlannedPath   = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	ColorTraversedPath = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	ColorRobot         = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	ColorHeading       = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	ColorObstacle      = color.NRGBA{R: 255, G: 0, B: 0, A: 128}
	ColorStartPoint    = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	ColorCheckpoint    = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	ColorLandmark      = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	ColorFinalGoal     = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

// Scene - 한 프레임에 그릴 내용
type Scene struct {
	Raster      *Raster
	RasterError string
	Transform   algorithms.Transform

	Pose          *models.RobotPose
	PlannedPath   []models.Point
	TraversedPath []models.Point
	Obstacles     []models.Obstacle
	Waypoints     models.Waypoints
}

// AxisScale - 래스터 픽셀 → 캔버스 픽셀 배율 (래스터 크기를 모르면 1)
func AxisScale(canvasW, canvasH int, raster *Raster) (float64, float64) {
	sx, sy := 1.0, 1.0
	if raster != nil && raster.Width > 0 {
		sx = float64(canvasW) / float64(raster.Width)
	}
	if raster != nil && raster.Height > 0 {
		sy = float64(canvasH) / float64(raster.Height)
	}
	return sx, sy
}

// RenderFrame - 캔버스 전체 다시 그리기
func RenderFrame(dst *image.RGBA, scene Scene) {
	b := dst.Bounds()
	draw.Draw(dst, b, image.Transparent, image.Point{}, draw.Src)
	if b.Empty() {
		return
	}

	p := newPainter(dst)
	sx, sy := AxisScale(b.Dx(), b.Dy(), scene.Raster)
	markerScale := math.Min(sx, sy)
	toCanvas := func(world models.Point) models.Point {
		px := scene.Transform.ToPixel(world)
		return models.Point{X: px.X * sx, Y: px.Y * sy}
	}
	size := func(base float64) float64 {
		return math.Max(base*markerScale, MinMarkerSize)
	}

	// 배경
	switch {
	case scene.RasterError != "":
		draw.Draw(dst, b, image.NewUniform(ColorPlaceholder), image.Point{}, draw.Src)
		p.text(scene.RasterError, 10, 30, ColorErrorText)
	case scene.Raster != nil && scene.Raster.Image != nil:
		scaler := draw.Interpolator(draw.ApproxBiLinear)
		if scene.Raster.Kind == RasterGrid {
			scaler = draw.NearestNeighbor
		}
		scaler.Scale(dst, b, scene.Raster.Image, scene.Raster.Image.Bounds(), draw.Src, nil)
	default:
		draw.Draw(dst, b, image.NewUniform(ColorPlaceholder), image.Point{}, draw.Src)
		p.text(MsgLoadingRasterMap, 10, 30, ColorPlaceholderTx)
	}

	// 계획 경로 / 주행 경로
	p.polyline(mapPoints(scene.PlannedPath, toCanvas), 2, ColorPlannedPath)
	p.polyline(mapPoints(scene.TraversedPath, toCanvas), 2, ColorTraversedPath)

	// 로봇
	if scene.Pose != nil {
		c := toCanvas(models.Point{X: scene.Pose.X, Y: scene.Pose.Y})
		p.circle(c.X, c.Y, size(5), ColorRobot)

		length := size(10)
		end := models.Point{
			X: c.X + length*math.Cos(scene.Pose.Heading),
			Y: c.Y - length*math.Sin(scene.Pose.Heading), // 캔버스 Y축 반전
		}
		p.segment(c, end, math.Max(2*markerScale, 1), ColorHeading)
	}

	// 장애물 (반투명)
	for _, o := range scene.Obstacles {
		c := toCanvas(models.Point{X: o.X, Y: o.Y})
		r := o.Radius * scene.Transform.PixelsPerUnit * markerScale
		p.circle(c.X, c.Y, math.Abs(r), ColorObstacle)
	}

	// 정적 마커: 시작(원), 체크포인트(삼각형), 랜드마크(사각형), 목표(X)
	if sp := scene.Waypoints.StartPoint; sp != nil {
		c := toCanvas(*sp)
		p.circle(c.X, c.Y, size(6)/2, ColorStartPoint)
	}
	for _, cp := range scene.Waypoints.Checkpoints {
		c := toCanvas(cp)
		half := size(10) / 2
		p.fill(ColorCheckpoint, []models.Point{
			{X: c.X, Y: c.Y - half},
			{X: c.X - half, Y: c.Y + half},
			{X: c.X + half, Y: c.Y + half},
		})
	}
	for _, lm := range scene.Waypoints.Landmarks {
		c := toCanvas(lm)
		half := size(8) / 2
		p.fill(ColorLandmark, []models.Point{
			{X: c.X - half, Y: c.Y - half},
			{X: c.X + half, Y: c.Y - half},
			{X: c.X + half, Y: c.Y + half},
			{X: c.X - half, Y: c.Y + half},
		})
	}
	if g := scene.Waypoints.FinalGoal; g != nil {
		c := toCanvas(*g)
		half := size(10) / 2
		width := math.Max(3*markerScale, 1)
		p.segment(models.Point{X: c.X - half, Y: c.Y - half}, models.Point{X: c.X + half, Y: c.Y + half}, width, ColorFinalGoal)
		p.segment(models.Point{X: c.X + half, Y: c.Y - half}, models.Point{X: c.X - half, Y: c.Y + half}, width, ColorFinalGoal)
	}
}

func mapPoints(points []models.Point, fn func(models.Point) models.Point) []models.Point {
	out := make([]models.Point, len(points))
	for i, pt := range points {
		out[i] = fn(pt)
	}
	return out
}

// painter - 벡터 래스터라이저로 도형 채우기
//
// 도형마다 경계 상자 크기로 래스터라이저를 맞춰 캔버스 전체를 훑지 않는다.
type painter struct {
	dst *image.RGBA
	z   *vector.Rasterizer
}

func newPainter(dst *image.RGBA) *painter {
	return &painter{dst: dst, z: vector.NewRasterizer(0, 0)}
}

// fill - 닫힌 다각형 채우기 (Over 합성)
func (p *painter) fill(col color.Color, pts []models.Point) {
	if len(pts) < 3 {
		return
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range pts {
		if math.IsNaN(pt.X) || math.IsNaN(pt.Y) || math.IsInf(pt.X, 0) || math.IsInf(pt.Y, 0) {
			return
		}
		minX, minY = math.Min(minX, pt.X), math.Min(minY, pt.Y)
		maxX, maxY = math.Max(maxX, pt.X), math.Max(maxY, pt.Y)
	}

	box := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1,
	).Intersect(p.dst.Bounds())
	if box.Empty() {
		return
	}

	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	p.z.Reset(box.Dx(), box.Dy())
	p.z.DrawOp = draw.Over
	p.z.MoveTo(float32(pts[0].X-ox), float32(pts[0].Y-oy))
	for _, pt := range pts[1:] {
		p.z.LineTo(float32(pt.X-ox), float32(pt.Y-oy))
	}
	p.z.ClosePath()
	p.z.Draw(p.dst, box, image.NewUniform(col), image.Point{})
}

// circle - 채운 원 (다각형 근사)
func (p *painter) circle(cx, cy, r float64, col color.Color) {
	if r <= 0 {
		return
	}
	segments := int(math.Min(64, math.Max(16, r*2)))
	pts := make([]models.Point, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / float64(segments)
		pts[i] = models.Point{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	p.fill(col, pts)
}

// segment - 두께 있는 선분
func (p *painter) segment(a, b models.Point, width float64, col color.Color) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	p.fill(col, []models.Point{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: a.X - nx, Y: a.Y - ny},
	})
}

// polyline - 연결된 선 (2개 이상의 점)
func (p *painter) polyline(pts []models.Point, width float64, col color.Color) {
	if len(pts) < 2 {
		return
	}
	for i := 1; i < len(pts); i++ {
		p.segment(pts[i-1], pts[i], width, col)
		if i < len(pts)-1 {
			p.circle(pts[i].X, pts[i].Y, width/2, col)
		}
	}
}

// text - 캔버스 인라인 메시지
func (p *painter) text(msg string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  p.dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(msg)
}
