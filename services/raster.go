package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"costmap-backend/algorithms"

	"github.com/klauspost/compress/gzip"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// RasterKind - 배경 래스터 종류
type RasterKind string

const (
	RasterImage RasterKind = "image" // PNG/JPG 등
	RasterGrid  RasterKind = "grid"  // CSV 숫자 격자
)

// 캔버스에 표시할 인라인 에러 메시지
const (
	MsgSourceNotSet     = "Costmap Source URL not set."
	MsgImageLoadFailed  = "Error loading map image."
	MsgGridInvalid      = "Invalid costmap data."
	MsgGridLoadFailed   = "Error loading costmap CSV."
	MsgLoadingRasterMap = "Loading map data..."
)

// RasterError - 래스터 로드 실패 (Message는 캔버스에 그대로 표시)
type RasterError struct {
	Message string
	Err     error
}

func (e *RasterError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *RasterError) Unwrap() error { return e.Err }

// Raster - 로드 완료된 배경 (로드 후 불변)
type Raster struct {
	Kind   RasterKind
	Width  int
	Height int

	// Image - 원본 이미지, 또는 격자를 코스트 색상으로 미리 그린 이미지
	Image image.Image

	// 격자 원본 (RasterGrid 일 때만)
	Grid    [][]float64
	MinCost float64
	MaxCost float64
}

// RasterKindFor - 확장자로 소스 종류 판별 (.csv / .csv.gz → 격자)
func RasterKindFor(source string) RasterKind {
	p := sourcePath(source)
	if strings.HasSuffix(p, ".csv") || strings.HasSuffix(p, ".csv.gz") {
		return RasterGrid
	}
	return RasterImage
}

// sourcePath - 쿼리를 뺀 소문자 경로 (확장자 검사용)
func sourcePath(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(p)
}

// LoadRaster - 소스 URL에서 배경 래스터 로드
//
// http(s)://, file:// URL 또는 로컬 경로를 받는다.
// 실패하면 항상 *RasterError 를 반환한다.
func LoadRaster(ctx context.Context, client *http.Client, source string) (*Raster, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, &RasterError{Message: MsgSourceNotSet}
	}

	kind := RasterKindFor(source)
	failMsg := MsgImageLoadFailed
	if kind == RasterGrid {
		failMsg = MsgGridLoadFailed
	}

	body, err := openSource(ctx, client, source)
	if err != nil {
		return nil, &RasterError{Message: failMsg, Err: err}
	}
	defer body.Close()

	var reader io.Reader = body
	if strings.HasSuffix(sourcePath(source), ".gz") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, &RasterError{Message: failMsg, Err: fmt.Errorf("gzip 해제 실패: %w", err)}
		}
		defer gz.Close()
		reader = gz
	}

	if kind == RasterGrid {
		grid, err := ParseGrid(reader)
		if err != nil {
			var rerr *RasterError
			if errors.As(err, &rerr) {
				return nil, rerr
			}
			return nil, &RasterError{Message: MsgGridLoadFailed, Err: err}
		}
		return NewGridRaster(grid)
	}

	raster, err := DecodeImageRaster(reader)
	if err != nil {
		return nil, &RasterError{Message: MsgImageLoadFailed, Err: err}
	}
	return raster, nil
}

// openSource - 소스 열기
func openSource(ctx context.Context, client *http.Client, source string) (io.ReadCloser, error) {
	u, err := url.Parse(source)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			if client == nil {
				client = http.DefaultClient
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("HTTP error! status: %d", resp.StatusCode)
			}
			return resp.Body, nil
		case "file":
			return os.Open(u.Path)
		}
	}
	return os.Open(source)
}

// ParseGrid - 콤마 구분 숫자 격자 파싱
//
// 모든 행은 같은 길이여야 하고 모든 셀은 숫자여야 한다.
func ParseGrid(r io.Reader) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = 0 // 첫 행 길이로 고정
	reader.ReuseRecord = true

	var grid [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &RasterError{Message: MsgGridInvalid, Err: err}
		}

		row := make([]float64, len(record))
		for i, cell := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) {
				return nil, &RasterError{
					Message: MsgGridInvalid,
					Err:     fmt.Errorf("행 %d, 열 %d: 숫자가 아님 %q", len(grid)+1, i+1, cell),
				}
			}
			row[i] = v
		}
		grid = append(grid, row)
	}

	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, &RasterError{Message: MsgGridInvalid, Err: errors.New("빈 격자")}
	}
	return grid, nil
}

// NewGridRaster - 격자 → 래스터 (min/max 정규화 색상으로 미리 렌더링)
func NewGridRaster(grid [][]float64) (*Raster, error) {
	height := len(grid)
	if height == 0 || len(grid[0]) == 0 {
		return nil, &RasterError{Message: MsgGridInvalid, Err: errors.New("빈 격자")}
	}
	width := len(grid[0])

	minCost, maxCost := math.Inf(1), math.Inf(-1)
	for y, row := range grid {
		if len(row) != width {
			return nil, &RasterError{
				Message: MsgGridInvalid,
				Err:     fmt.Errorf("행 %d 길이 %d != %d", y+1, len(row), width),
			}
		}
		for _, v := range row {
			minCost = math.Min(minCost, v)
			maxCost = math.Max(maxCost, v)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y, row := range grid {
		for x, v := range row {
			img.SetRGBA(x, y, algorithms.CostColor(v, minCost, maxCost))
		}
	}

	return &Raster{
		Kind:    RasterGrid,
		Width:   width,
		Height:  height,
		Image:   img,
		Grid:    grid,
		MinCost: minCost,
		MaxCost: maxCost,
	}, nil
}

// DecodeImageRaster - 이미지 디코딩
func DecodeImageRaster(r io.Reader) (*Raster, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("이미지 디코딩 실패: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("빈 이미지")
	}
	log.Printf("🗺️ [Map] 이미지 디코딩 완료: %s %dx%d", format, b.Dx(), b.Dy())
	return &Raster{
		Kind:   RasterImage,
		Width:  b.Dx(),
		Height: b.Dy(),
		Image:  img,
	}, nil
}
