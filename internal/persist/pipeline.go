package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fisio-telemetry/internal/models"

	"go.uber.org/zap"
)

// Pipeline 单会话持久化队列。
// 入站协程只入队，不等待写入完成——慢的存储永远不会卡住下一个采样的接收。
// 单个排水协程消费队列，保证同一会话的采样按到达序写入主库；
// 跨会话不保证也不需要顺序。
type Pipeline struct {
	coord     *Coordinator
	patientID string
	sessionID string

	mu     sync.Mutex
	closed bool
	queue  chan *models.PersistedRecord
	done   chan struct{}

	drainCtx    context.Context
	drainCancel context.CancelFunc

	failures atomic.Int64
	dropped  atomic.Int64
}

// NewPipeline 创建会话持久化队列并启动排水协程。
// sessionCtx 为会话上下文：会话结束时取消，在途镜像写入随之中止；
// 主库写入不受会话结束影响，由 Close 的宽限期控制排空。
func (c *Coordinator) NewPipeline(sessionCtx context.Context, patientID, sessionID string) *Pipeline {
	drainCtx, drainCancel := context.WithCancel(context.Background())
	p := &Pipeline{
		coord:       c,
		patientID:   patientID,
		sessionID:   sessionID,
		queue:       make(chan *models.PersistedRecord, c.cfg.QueueDepth),
		done:        make(chan struct{}),
		drainCtx:    drainCtx,
		drainCancel: drainCancel,
	}
	go p.drain(sessionCtx)
	return p
}

func (p *Pipeline) drain(sessionCtx context.Context) {
	defer close(p.done)
	for rec := range p.queue {
		out := p.coord.Persist(p.drainCtx, sessionCtx, p.patientID, rec)
		if out.Primary != nil {
			p.failures.Add(1)
		}
	}
}

// Enqueue 非阻塞入队。队列满或已关闭时丢弃并计数——
// 入站路径的错误永远不中断流。
func (p *Pipeline) Enqueue(rec *models.PersistedRecord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.queue <- rec:
		return true
	default:
		p.dropped.Add(1)
		p.coord.logger.Warn("persist queue full, sample dropped",
			zap.String("patient_id", p.patientID),
			zap.String("session_id", p.sessionID),
		)
		return false
	}
}

// Close 关闭队列并等待排空。宽限期内未完成的主库写入被放弃，
// 会话无论如何都会结束。幂等。
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(p.coord.cfg.DrainGrace):
		p.drainCancel()
		<-p.done
	}
	p.drainCancel()

	if f := p.failures.Load(); f > 0 {
		// 会话级降级持久性告警：主库最终失败的采样数
		p.coord.logger.Warn("session persisted with degraded durability",
			zap.String("patient_id", p.patientID),
			zap.String("session_id", p.sessionID),
			zap.Int64("failed_writes", f),
			zap.Int64("dropped", p.dropped.Load()),
		)
	}
}

// PrimaryFailures 主库最终失败的写入数
func (p *Pipeline) PrimaryFailures() int64 {
	return p.failures.Load()
}

// Dropped 因队列满或已关闭而丢弃的采样数
func (p *Pipeline) Dropped() int64 {
	return p.dropped.Load()
}
