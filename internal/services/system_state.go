package services

import (
	"fmt"
	"sync"

	apperrors "github.com/aihub/docqa-go/internal/errors"
	"github.com/aihub/docqa-go/internal/metrics"
)

// Phase 系统阶段
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseReady
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	MessageInitializing = "System is initializing..."
	MessageOnline       = "System Online"
)

// 状态转换规则：只能从初始化进入就绪或错误，且不可回退
var phaseTransitions = map[Phase][]Phase{
	PhaseInitializing: {PhaseReady, PhaseError},
}

// StateSnapshot 某一时刻的系统状态
type StateSnapshot struct {
	Phase   Phase
	Message string
}

// Ready 是否可以处理问答请求
func (s StateSnapshot) Ready() bool {
	return s.Phase == PhaseReady
}

// SystemState 摄取任务写入、HTTP请求读取的共享状态
type SystemState struct {
	mu      sync.RWMutex
	phase   Phase
	message string
}

// NewSystemState 创建初始化中的状态
func NewSystemState() *SystemState {
	metrics.IngestionState.Set(float64(PhaseInitializing))
	return &SystemState{phase: PhaseInitializing, message: MessageInitializing}
}

// Snapshot 读取当前状态
func (s *SystemState) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateSnapshot{Phase: s.phase, Message: s.message}
}

// MarkReady 进入就绪状态
func (s *SystemState) MarkReady() error {
	return s.transition(PhaseReady, MessageOnline)
}

// MarkError 进入错误状态，消息中保留失败原因
func (s *SystemState) MarkError(cause error) error {
	return s.transition(PhaseError, fmt.Sprintf("Startup Error: %v", cause))
}

// CanTransition 检查是否可以进行状态转换
func CanTransition(from, to Phase) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *SystemState) transition(to Phase, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(s.phase, to) {
		return apperrors.NewSystemError(apperrors.ErrCodeInvalidState,
			fmt.Sprintf("invalid state transition from %s to %s", s.phase, to))
	}
	s.phase = to
	s.message = message
	metrics.IngestionState.Set(float64(to))
	return nil
}
