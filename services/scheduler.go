package services

import (
	"sync"
	"time"
)

// Task - 반복 실행 작업 (시작/일시정지/재개/중지)
//
// fn 은 Task 의 고루틴 하나에서만 호출되며 두 번 겹쳐 실행되지 않는다.
// Stop 이 반환된 뒤에는 fn 이 더 이상 호출되지 않는다.
type Task struct {
	interval time.Duration
	fn       func(now time.Time)

	mu      sync.Mutex
	started bool
	paused  bool
	stopped bool

	pauseChan chan bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewTask - 작업 생성 (Start 전까지 실행 안 함)
func NewTask(interval time.Duration, fn func(now time.Time)) *Task {
	if interval <= 0 {
		interval = time.Second / 30
	}
	return &Task{
		interval:  interval,
		fn:        fn,
		pauseChan: make(chan bool),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start - 주기 실행 시작 (중복 호출 무시)
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	go t.run(t.paused)
}

// Pause - 일시정지 (편집 모드 등)
func (t *Task) Pause() { t.setPaused(true) }

// Resume - 재개
func (t *Task) Resume() { t.setPaused(false) }

func (t *Task) setPaused(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.paused == paused {
		return
	}
	t.paused = paused
	if t.started {
		t.pauseChan <- paused
	}
}

// Paused - 일시정지 여부
func (t *Task) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Running - 실행 중 여부 (시작됨, 정지/일시정지 아님)
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped && !t.paused
}

// Stop - 영구 중지 (멱등, 진행 중인 fn 이 끝날 때까지 대기)
func (t *Task) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	started := t.started
	close(t.stopChan)
	t.mu.Unlock()

	if started {
		<-t.done
	}
}

func (t *Task) run(paused bool) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case paused = <-t.pauseChan:
			if !paused {
				ticker.Reset(t.interval)
			}
		case now := <-ticker.C:
			if paused {
				continue
			}
			select {
			case <-t.stopChan:
				return
			default:
			}
			t.fn(now)
		}
	}
}
