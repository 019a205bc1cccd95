package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"costmap-backend/models"
)

// 로깅 버퍼 (비동기 일괄 처리)
type LogBuffer struct {
	logs      []models.MapEventLog
	mu        sync.Mutex
	flushSize int           // 일괄 저장 크기
	flushTime time.Duration // 자동 플러시 시간
	stopChan  chan struct{}
	done      chan struct{}
}

var (
	logBuffer   *LogBuffer
	logBufferMu sync.RWMutex
)

// InitLogging - 로깅 시스템 초기화
func InitLogging(flushSize int, flushInterval time.Duration) {
	if flushSize <= 0 {
		flushSize = 1
	}
	lb := &LogBuffer{
		logs:      make([]models.MapEventLog, 0, flushSize*2),
		flushSize: flushSize,
		flushTime: flushInterval,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	logBufferMu.Lock()
	logBuffer = lb
	logBufferMu.Unlock()

	// 자동 플러시 고루틴 시작
	go lb.autoFlush()

	log.Printf("✅ 로깅 시스템 초기화 완료 (flushSize: %d, flushInterval: %v)", flushSize, flushInterval)
}

func currentLogBuffer() *LogBuffer {
	logBufferMu.RLock()
	defer logBufferMu.RUnlock()
	return logBuffer
}

// autoFlush - 주기적 로그 저장
func (lb *LogBuffer) autoFlush() {
	defer close(lb.done)

	ticker := time.NewTicker(lb.flushTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lb.Flush()
		case <-lb.stopChan:
			lb.Flush() // 종료 시 남은 로그 저장
			return
		}
	}
}

// AddLog - 로그 버퍼에 추가 (비동기)
func AddLog(entry models.MapEventLog) {
	lb := currentLogBuffer()
	if lb == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	lb.mu.Lock()
	lb.logs = append(lb.logs, entry)
	size := len(lb.logs)
	lb.mu.Unlock()

	// 버퍼 크기가 차면 즉시 플러시
	if size >= lb.flushSize {
		go lb.Flush()
	}
}

// Pending - 저장 대기 중인 로그 수
func (lb *LogBuffer) Pending() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return len(lb.logs)
}

// Flush - 버퍼의 모든 로그를 DB에 저장
func (lb *LogBuffer) Flush() {
	lb.mu.Lock()
	if len(lb.logs) == 0 {
		lb.mu.Unlock()
		return
	}

	// 로그 복사 및 버퍼 초기화
	logsToSave := make([]models.MapEventLog, len(lb.logs))
	copy(logsToSave, lb.logs)
	lb.logs = lb.logs[:0]
	lb.mu.Unlock()

	conn := GetDB()
	if conn == nil {
		return
	}
	if err := conn.CreateInBatches(logsToSave, 100).Error; err != nil {
		log.Printf("❌ 로그 저장 실패: %v", err)
		return
	}
	log.Printf("💾 로그 %d개 저장 완료", len(logsToSave))
}

// FlushLogs - 즉시 저장
func FlushLogs() {
	if lb := currentLogBuffer(); lb != nil {
		lb.Flush()
	}
}

// LogMapEvent - 컴포넌트 이벤트 기록 (ComponentOptions.EventLog 로 연결)
func LogMapEvent(entry models.MapEventLog) {
	AddLog(entry)
}

// GetRecentLogs - 최근 로그 조회
func GetRecentLogs(viewID string, limit int) ([]models.MapEventLog, error) {
	conn := GetDB()
	if conn == nil {
		return nil, ErrDatabaseDisabled
	}
	var logs []models.MapEventLog
	err := conn.Where("view_id = ?", viewID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// GetLogsByTimeRange - 시간 범위로 로그 조회
func GetLogsByTimeRange(viewID string, start, end time.Time, limit int) ([]models.MapEventLog, error) {
	conn := GetDB()
	if conn == nil {
		return nil, ErrDatabaseDisabled
	}
	var logs []models.MapEventLog
	query := conn.Where("view_id = ? AND created_at BETWEEN ? AND ?", viewID, start, end)

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// GetLogsByEventType - 이벤트 타입별 로그 조회
func GetLogsByEventType(viewID string, eventType string, limit int) ([]models.MapEventLog, error) {
	conn := GetDB()
	if conn == nil {
		return nil, ErrDatabaseDisabled
	}
	var logs []models.MapEventLog
	err := conn.Where("view_id = ? AND event_type = ?", viewID, eventType).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// GetLogStats - 로그 통계
func GetLogStats(viewID string, hours int) (models.LogStats, error) {
	conn := GetDB()
	if conn == nil {
		return models.LogStats{}, ErrDatabaseDisabled
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	var totalLogs int64
	if err := conn.Model(&models.MapEventLog{}).
		Where("view_id = ? AND created_at >= ?", viewID, since).
		Count(&totalLogs).Error; err != nil {
		return models.LogStats{}, err
	}

	// 이벤트 타입별 카운트
	var eventCounts []struct {
		EventType string
		Count     int64
	}
	if err := conn.Model(&models.MapEventLog{}).
		Select("event_type, COUNT(*) as count").
		Where("view_id = ? AND created_at >= ?", viewID, since).
		Group("event_type").
		Scan(&eventCounts).Error; err != nil {
		return models.LogStats{}, err
	}

	eventMap := make(map[string]int64)
	for _, ec := range eventCounts {
		eventMap[ec.EventType] = ec.Count
	}

	return models.LogStats{
		TotalLogs:   totalLogs,
		EventCounts: eventMap,
		TimeRange:   fmt.Sprintf("Last %d hours", hours),
	}, nil
}

// StopLogging - 로깅 시스템 종료 (남은 로그 저장 후 반환)
func StopLogging() {
	logBufferMu.Lock()
	lb := logBuffer
	logBuffer = nil
	logBufferMu.Unlock()

	if lb == nil {
		return
	}
	close(lb.stopChan)
	<-lb.done
	log.Println("🛑 로깅 시스템 종료")
}
