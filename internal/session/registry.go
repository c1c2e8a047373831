package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"fisio-telemetry/internal/buffer"
	"fisio-telemetry/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyActive 患者已有 ACTIVE 会话，拒绝第二次 start
	ErrAlreadyActive = errors.New("patient already has an active session")
	// ErrNoActiveSession 采样到达时没有可归属的会话
	ErrNoActiveSession = errors.New("no active session for patient")
)

// EndHook 会话 ACTIVE→ENDED 迁移时触发，每次迁移恰好一次。
// 与持久化结果解耦：即使该会话所有写入都失败也会触发。
type EndHook func(patientID, sessionID string, endedAt time.Time)

// Registry 会话注册表：进程内唯一的共享可变状态。
// 外层锁只保护患者表本身，状态迁移按患者粒度串行化，
// 不同患者的会话互不阻塞。
type Registry struct {
	mu       sync.Mutex
	patients map[string]*patientEntry
	capacity int
	hooks    []EndHook
	logger   *zap.Logger
	now      func() time.Time
}

// patientEntry 单个患者的会话槽位。entry 级别的锁串行化该患者的
// start/end/resolve 与采样写入。
type patientEntry struct {
	mu      sync.Mutex
	session *models.Session
	flex    *buffer.Window
	emg     *buffer.Window
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRegistry windowCapacity 为每通道滑动窗口容量（<=0 时取默认值 50）
func NewRegistry(windowCapacity int, logger *zap.Logger) *Registry {
	return &Registry{
		patients: make(map[string]*patientEntry),
		capacity: windowCapacity,
		logger:   logger,
		now:      time.Now,
	}
}

// OnSessionEnd 注册会话结束钩子。须在开始服务前注册，不做并发保护。
func (r *Registry) OnSessionEnd(h EndHook) {
	r.hooks = append(r.hooks, h)
}

func (r *Registry) entry(patientID string) *patientEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.patients[patientID]
	if !ok {
		e = &patientEntry{}
		r.patients[patientID] = e
	}
	return e
}

// StartSession 开始新会话，IDLE→ACTIVE。
// 患者已有 ACTIVE 会话时返回 ErrAlreadyActive，现有会话不受影响。
// 并发 start 先到者胜出（按 entry 锁串行化）。
func (r *Registry) StartSession(patientID string) (string, error) {
	e := r.entry(patientID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && e.session.State == models.SessionActive {
		return "", ErrAlreadyActive
	}

	startedAt := r.now().UTC()
	sessionID := newSessionID(startedAt)
	ctx, cancel := context.WithCancel(context.Background())

	e.session = &models.Session{
		SessionID: sessionID,
		PatientID: patientID,
		State:     models.SessionActive,
		StartedAt: startedAt,
	}
	e.flex = buffer.New(r.capacity)
	e.emg = buffer.New(r.capacity)
	e.ctx = ctx
	e.cancel = cancel

	r.logger.Info("session started",
		zap.String("patient_id", patientID),
		zap.String("session_id", sessionID),
	)
	return sessionID, nil
}

// EndSession ACTIVE→ENDED。幂等：对非 ACTIVE 会话调用是 no-op，
// 因为显式停止可能与连接断开竞争。
// 结束时取消会话上下文（中止在途镜像写入）并丢弃实时缓冲；
// 会话记录与已持久化采样保留。
func (r *Registry) EndSession(patientID string) {
	e := r.entry(patientID)

	e.mu.Lock()
	if e.session == nil || e.session.State != models.SessionActive {
		e.mu.Unlock()
		return
	}

	endedAt := r.now().UTC()
	e.session.State = models.SessionEnded
	e.session.EndedAt = &endedAt
	sessionID := e.session.SessionID
	if e.cancel != nil {
		e.cancel()
	}
	e.flex = nil
	e.emg = nil
	e.mu.Unlock()

	r.logger.Info("session ended",
		zap.String("patient_id", patientID),
		zap.String("session_id", sessionID),
	)

	// 迁移已完成，钩子在锁外触发；每次 ACTIVE→ENDED 恰好一次
	for _, h := range r.hooks {
		h(patientID, sessionID, endedAt)
	}
}

// Resolve 入站路径用来把采样归属到正确会话
func (r *Registry) Resolve(patientID string) (*Active, error) {
	r.mu.Lock()
	e, ok := r.patients[patientID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNoActiveSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.session.State != models.SessionActive {
		return nil, ErrNoActiveSession
	}
	return &Active{
		SessionID: e.session.SessionID,
		PatientID: patientID,
		ctx:       e.ctx,
		entry:     e,
	}, nil
}

// newSessionID 时间戳派生的会话 ID：字典序可排序，纳秒精度，
// 同一患者内按构造不冲突（start 按患者串行化）。
// 与历史数据保持 ":" 替换为 "-" 的格式。
func newSessionID(t time.Time) string {
	return t.Format("2006-01-02T15-04-05.000000000Z")
}

// Active 已解析的活动会话句柄，供入站工作协程使用
type Active struct {
	SessionID string
	PatientID string
	ctx       context.Context
	entry     *patientEntry
}

// Context 会话上下文；会话结束时取消
func (a *Active) Context() context.Context {
	return a.ctx
}

// Push 写入一帧采样到两个通道的滑动窗口。
// 会话已结束（与 end 竞争）时返回 false，采样被丢弃。
func (a *Active) Push(r models.Reading) bool {
	a.entry.mu.Lock()
	defer a.entry.mu.Unlock()
	s := a.entry.session
	if s == nil || s.State != models.SessionActive || s.SessionID != a.SessionID {
		return false
	}
	samples := r.Samples()
	a.entry.flex.Push(samples[0])
	a.entry.emg.Push(samples[1])
	return true
}

// Snapshot 指定通道的只读快照（从旧到新）。会话已结束时返回 nil。
func (a *Active) Snapshot(ch models.SignalChannel) []models.Sample {
	a.entry.mu.Lock()
	defer a.entry.mu.Unlock()
	s := a.entry.session
	if s == nil || s.SessionID != a.SessionID {
		return nil
	}
	switch ch {
	case models.ChannelFlex:
		if a.entry.flex != nil {
			return a.entry.flex.Snapshot()
		}
	case models.ChannelEmg:
		if a.entry.emg != nil {
			return a.entry.emg.Snapshot()
		}
	}
	return nil
}
