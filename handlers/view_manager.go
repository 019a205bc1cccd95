package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"costmap-backend/models"
	"costmap-backend/services"

	"github.com/google/uuid"
)

// ErrViewNotFound - 없는 뷰
var ErrViewNotFound = errors.New("view not found")

// BusFactory - 뷰마다 쓸 버스 생성 (owns 가 true 면 뷰 종료 시 닫힘)
type BusFactory func(cfg services.MapConfig) (bus services.Bus, owns bool)

// ViewManager - 맵 뷰(컴포넌트) 등록/조회/정리
type ViewManager struct {
	mu         sync.RWMutex
	views      map[string]*ViewInfo // view_id -> ViewInfo
	lastAccess map[string]time.Time // view_id -> 마지막 접근 시간

	config   services.MapConfig
	newBus   BusFactory
	notify   func(viewID string, msg models.WebSocketMessage)
	eventLog func(models.MapEventLog)
}

// ViewInfo - 뷰 정보
type ViewInfo struct {
	ID        string                 `json:"id"`         // 뷰 ID
	CreatedAt time.Time              `json:"created_at"` // 생성 시간
	Width     int                    `json:"width"`      // 컨테이너 너비
	Height    int                    `json:"height"`     // 컨테이너 높이
	Component *services.MapComponent `json:"-"`
}

// ViewManagerOptions - 뷰 관리자 설정
type ViewManagerOptions struct {
	Config   services.MapConfig
	NewBus   BusFactory
	Notify   func(viewID string, msg models.WebSocketMessage)
	EventLog func(models.MapEventLog)
}

// NewViewManager - 뷰 관리자 생성
func NewViewManager(opts ViewManagerOptions) *ViewManager {
	return &ViewManager{
		views:      make(map[string]*ViewInfo),
		lastAccess: make(map[string]time.Time),
		config:     opts.Config,
		newBus:     opts.NewBus,
		notify:     opts.Notify,
		eventLog:   opts.EventLog,
	}
}

// CreateView - 새 뷰 생성 후 표시
func (m *ViewManager) CreateView(ctx context.Context, width, height int) (*ViewInfo, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("컨테이너 크기가 올바르지 않습니다: %dx%d", width, height)
	}
	if m.newBus == nil {
		return nil, fmt.Errorf("버스 생성기가 설정되지 않았습니다")
	}

	id := uuid.NewString()
	bus, owns := m.newBus(m.config)

	opts := services.ComponentOptions{
		ID:       id,
		Config:   m.config,
		Bus:      bus,
		OwnsBus:  owns,
		EventLog: m.eventLog,
	}
	if m.notify != nil {
		opts.Notify = func(msg models.WebSocketMessage) { m.notify(id, msg) }
	}
	component := services.NewMapComponent(opts)

	if err := component.Show(ctx, width, height); err != nil {
		component.Destroy()
		return nil, fmt.Errorf("뷰 표시 실패: %w", err)
	}

	now := time.Now()
	info := &ViewInfo{
		ID:        id,
		CreatedAt: now,
		Width:     width,
		Height:    height,
		Component: component,
	}

	m.mu.Lock()
	m.views[id] = info
	m.lastAccess[id] = now
	m.mu.Unlock()

	log.Printf("[View] view created: %s (%dx%d)\n", id, width, height)
	return info, nil
}

// GetView - 뷰 조회 (접근 시간 갱신)
func (m *ViewManager) GetView(viewID string) (*ViewInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, exists := m.views[viewID]
	if !exists {
		return nil, ErrViewNotFound
	}
	m.lastAccess[viewID] = time.Now()
	return info, nil
}

// Touch - 접근 시간만 갱신 (WebSocket 구독 중인 뷰 유지용)
func (m *ViewManager) Touch(viewID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.views[viewID]; exists {
		m.lastAccess[viewID] = time.Now()
	}
}

// ResizeView - 컨테이너 크기 변경
func (m *ViewManager) ResizeView(ctx context.Context, viewID string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("컨테이너 크기가 올바르지 않습니다: %dx%d", width, height)
	}
	info, err := m.GetView(viewID)
	if err != nil {
		return err
	}
	if err := info.Component.Resize(ctx, width, height); err != nil {
		return err
	}

	m.mu.Lock()
	info.Width, info.Height = width, height
	m.mu.Unlock()
	return nil
}

// GetAllViews - 모든 뷰 복사본 (생성 순)
func (m *ViewManager) GetAllViews() []ViewInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ViewInfo, 0, len(m.views))
	for _, info := range m.views {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// RemoveView - 뷰 종료 및 등록 해제
func (m *ViewManager) RemoveView(viewID string) error {
	m.mu.Lock()
	info, exists := m.views[viewID]
	if !exists {
		m.mu.Unlock()
		return ErrViewNotFound
	}
	delete(m.views, viewID)
	delete(m.lastAccess, viewID)
	m.mu.Unlock()

	info.Component.Destroy()
	log.Printf("[View] view removed: %s\n", viewID)
	return nil
}

// GetViewCount - 현재 뷰 수
func (m *ViewManager) GetViewCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// CleanupIdleViews - 유휴 뷰 정리
//
// 주어진 시간 동안 접근이 없는 뷰를 종료한다.
func (m *ViewManager) CleanupIdleViews(timeout time.Duration) int {
	now := time.Now()

	m.mu.Lock()
	var idle []*ViewInfo
	for viewID, last := range m.lastAccess {
		if now.Sub(last) > timeout {
			idle = append(idle, m.views[viewID])
			delete(m.views, viewID)
			delete(m.lastAccess, viewID)
		}
	}
	m.mu.Unlock()

	for _, info := range idle {
		info.Component.Destroy()
		log.Printf("[View] view cleanup: %s (idle)\n", info.ID)
	}
	return len(idle)
}

// RunJanitor - 주기적으로 유휴 뷰 정리 (ctx 종료 시 반환)
func (m *ViewManager) RunJanitor(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupIdleViews(timeout); n > 0 {
				log.Printf("🧹 [View] 유휴 뷰 %d개 정리", n)
			}
		}
	}
}

// Shutdown - 모든 뷰 종료
func (m *ViewManager) Shutdown() {
	m.mu.Lock()
	views := m.views
	m.views = make(map[string]*ViewInfo)
	m.lastAccess = make(map[string]time.Time)
	m.mu.Unlock()

	for _, info := range views {
		info.Component.Destroy()
	}
	log.Printf("🛑 [View] 뷰 %d개 종료", len(views))
}
