package services

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"costmap-backend/algorithms"
	"costmap-backend/models"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// 기본 좌표 변환 상수 (경기장 costmap.png 기준)
const (
	DefaultPixelOffsetX   = 208.0
	DefaultPixelOffsetY   = 761.0
	DefaultPixelsPerMeter = 20.2
	DefaultFrameRate      = 30.0
	DefaultRosbridgeURL   = "ws://localhost:9090"
)

// MapConfig - 맵 뷰 정적 설정 (객체 생성 시 고정)
//
// 웨이포인트 필드는 네이티브 배열([x, y] / [[x, y], ...]) 또는
// 같은 모양의 JSON 텍스트 문자열을 모두 받는다.
type MapConfig struct {
	CostmapSourceURL string  `yaml:"costmap_source_url" json:"costmap_source_url"`
	PixelOffsetX     float64 `yaml:"pixel_offset_x" json:"pixel_offset_x"`
	PixelOffsetY     float64 `yaml:"pixel_offset_y" json:"pixel_offset_y"`
	PixelsPerMeter   float64 `yaml:"pixels_per_meter" json:"pixels_per_meter"`

	StartPoint  any `yaml:"start_point" json:"start_point"`
	Checkpoints any `yaml:"checkpoints" json:"checkpoints"`
	FinalGoal   any `yaml:"final_goal" json:"final_goal"`
	Landmarks   any `yaml:"landmarks" json:"landmarks"`

	FrameRate    float64 `yaml:"frame_rate" json:"frame_rate"`       // 초당 프레임
	RosbridgeURL string  `yaml:"rosbridge_url" json:"rosbridge_url"` // ws://host:9090
	Compression  string  `yaml:"compression" json:"compression"`     // "none" | "cbor"
}

// DefaultMapConfig - 기본 설정
func DefaultMapConfig() MapConfig {
	return MapConfig{
		PixelOffsetX:   DefaultPixelOffsetX,
		PixelOffsetY:   DefaultPixelOffsetY,
		PixelsPerMeter: DefaultPixelsPerMeter,
		FrameRate:      DefaultFrameRate,
		RosbridgeURL:   DefaultRosbridgeURL,
		Compression:    models.RosCompressionNone,
	}
}

// LoadMapConfig - YAML 파일에서 설정 로드
//
// 파일에 없는 키는 기본값을 유지한다.
func LoadMapConfig(path string) (MapConfig, error) {
	cfg := DefaultMapConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("맵 설정 읽기 실패: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("맵 설정 파싱 실패 (%s): %w", path, err)
	}

	log.Printf("✅ 맵 설정 로드: %s", path)
	return cfg, nil
}

// ApplyEnv - 환경 변수로 설정 덮어쓰기
func (c *MapConfig) ApplyEnv() {
	if v := os.Getenv("COSTMAP_SOURCE_URL"); v != "" {
		c.CostmapSourceURL = v
	}
	if v := os.Getenv("ROSBRIDGE_URL"); v != "" {
		c.RosbridgeURL = v
	}
	if v := os.Getenv("ROSBRIDGE_COMPRESSION"); v != "" {
		c.Compression = v
	}
}

// Transform - 좌표 변환 상수
//
// 스케일이 0이거나 유한하지 않으면 역변환이 불가능하므로 기본값을 쓴다.
func (c MapConfig) Transform() algorithms.Transform {
	t := algorithms.Transform{
		OffsetX:       c.PixelOffsetX,
		OffsetY:       c.PixelOffsetY,
		PixelsPerUnit: c.PixelsPerMeter,
	}
	if !t.Valid() {
		log.Printf("⚠️ [Config] pixels_per_meter 값이 잘못됨 (%v), 기본값 %.1f 사용", c.PixelsPerMeter, DefaultPixelsPerMeter)
		t.PixelsPerUnit = DefaultPixelsPerMeter
	}
	return t
}

// FrameInterval - 렌더 루프 주기
func (c MapConfig) FrameInterval() time.Duration {
	rate := c.FrameRate
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = DefaultFrameRate
	}
	return time.Duration(float64(time.Second) / rate)
}

// Waypoints - 정적 마커 파싱 (잘못된 입력은 경고 후 비움)
func (c MapConfig) Waypoints() models.Waypoints {
	return models.Waypoints{
		StartPoint:  ParsePoint("start_point", c.StartPoint),
		Checkpoints: ParsePointList("checkpoints", c.Checkpoints),
		FinalGoal:   ParsePoint("final_goal", c.FinalGoal),
		Landmarks:   ParsePointList("landmarks", c.Landmarks),
	}
}

// ParsePointList - [[x, y], ...] 배열 또는 JSON 텍스트 파싱
//
// 절대 에러를 반환하지 않는다. 잘못된 입력은 로그를 남기고 빈 목록.
func ParsePointList(field string, value any) []models.Point {
	raw, ok := decodeWaypointValue(field, value)
	if !ok || raw == nil {
		return []models.Point{}
	}

	items, ok := raw.([]any)
	if !ok {
		log.Printf("⚠️ [Config] %s: [x, y] 배열의 배열이어야 합니다 (%T)", field, raw)
		return []models.Point{}
	}

	points := make([]models.Point, 0, len(items))
	for i, item := range items {
		p, ok := toPoint(item)
		if !ok {
			log.Printf("⚠️ [Config] %s[%d]: 잘못된 좌표 형식 %v", field, i, item)
			return []models.Point{}
		}
		points = append(points, p)
	}
	return points
}

// ParsePoint - [x, y] 배열 또는 JSON 텍스트 파싱 (잘못되면 nil)
func ParsePoint(field string, value any) *models.Point {
	raw, ok := decodeWaypointValue(field, value)
	if !ok || raw == nil {
		return nil
	}

	p, ok := toPoint(raw)
	if !ok {
		log.Printf("⚠️ [Config] %s: [x, y] 형식이어야 합니다 (%v)", field, raw)
		return nil
	}
	return &p
}

// decodeWaypointValue - 문자열이면 JSON(C)으로 해석, 나머지는 일반 값으로 정규화
func decodeWaypointValue(field string, value any) (any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return nil, true
		}
		var decoded any
		if err := json.Unmarshal(jsonc.ToJSON([]byte(text)), &decoded); err != nil {
			log.Printf("❌ [Config] %s JSON 파싱 실패: %v (%q)", field, err, text)
			return nil, false
		}
		return decoded, true
	case []byte:
		return decodeWaypointValue(field, string(v))
	case models.Point:
		return []any{v.X, v.Y}, true
	case []models.Point:
		items := make([]any, len(v))
		for i, p := range v {
			items[i] = []any{p.X, p.Y}
		}
		return items, true
	case [2]float64:
		return []any{v[0], v[1]}, true
	case [][2]float64:
		items := make([]any, len(v))
		for i, p := range v {
			items[i] = []any{p[0], p[1]}
		}
		return items, true
	case []float64:
		items := make([]any, len(v))
		for i, f := range v {
			items[i] = f
		}
		return items, true
	case [][]float64:
		items := make([]any, len(v))
		for i, p := range v {
			pair := make([]any, len(p))
			for j, f := range p {
				pair[j] = f
			}
			items[i] = pair
		}
		return items, true
	case []any:
		return v, true
	default:
		log.Printf("⚠️ [Config] %s: 문자열 또는 배열이 아닙니다 (%T)", field, value)
		return nil, false
	}
}

// toPoint - [x, y] 숫자 쌍 → Point
func toPoint(v any) (models.Point, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return models.Point{}, false
	}
	x, okX := toFloat(pair[0])
	y, okY := toFloat(pair[1])
	if !okX || !okY {
		return models.Point{}, false
	}
	return models.Point{X: x, Y: y}, true
}

// toFloat - JSON/YAML/CBOR 숫자 → float64
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case uint32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
