package services

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"leasehub/internal/models"
	"leasehub/pkg/logger"
	"leasehub/pkg/queue"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 租约领域事件
const (
	EventLeaseCreated   = "lease.created"
	EventLeaseUpdated   = "lease.updated"
	EventLeaseCancelled = "lease.cancelled"
	EventLeaseExpired   = "lease.expired"
)

// LeaseEvent 推送给通知等外部协作方的事件载荷
type LeaseEvent struct {
	Name       string    `json:"name"`
	LeaseID    string    `json:"lease_id"`
	Reference  string    `json:"reference"`
	UnitID     uint      `json:"unit_id"`
	TenantID   uint      `json:"tenant_id"`
	PropertyID uint      `json:"property_id"`
	Status     string    `json:"status"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newLeaseEvent(name string, l *models.Lease, at time.Time) LeaseEvent {
	return LeaseEvent{
		Name:       name,
		LeaseID:    l.ID,
		Reference:  l.Reference,
		UnitID:     l.UnitID,
		TenantID:   l.TenantID,
		PropertyID: l.PropertyID,
		Status:     l.Status,
		StartDate:  l.StartDate,
		EndDate:    l.EndDate,
		Amount:     l.Amount,
		OccurredAt: at,
	}
}

// EventEmitter 引擎侧的事件出口，调用不得阻塞
type EventEmitter interface {
	Emit(event LeaseEvent)
}

// EventSink 实际投递事件的下游
type EventSink interface {
	Deliver(ctx context.Context, event LeaseEvent) error
}

// ========== 下游实现 ==========

// QueueSink 投递到Redis事件队列
type QueueSink struct {
	queue *queue.RedisEventQueue
}

func NewQueueSink(q *queue.RedisEventQueue) *QueueSink {
	return &QueueSink{queue: q}
}

func (s *QueueSink) Deliver(ctx context.Context, event LeaseEvent) error {
	return s.queue.Publish(ctx, event.Name, event)
}

// LogSink 只记录日志
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, event LeaseEvent) error {
	logger.WithLease(event.LeaseID, event.UnitID).
		WithField("event", event.Name).
		WithField("status", event.Status).
		Info("lease event")
	return nil
}

// NamedSink 带名字的下游，失败记录按名字只重投失败的那几路
type NamedSink struct {
	Name string
	Sink EventSink
}

// DeliveryError 多路投递中失败的下游
type DeliveryError struct {
	Sinks []string
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: %v", strings.Join(e.Sinks, ","), e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// MultiSink 依次投递到所有下游，任一失败时返回 *DeliveryError
type MultiSink []NamedSink

func (m MultiSink) Deliver(ctx context.Context, event LeaseEvent) error {
	return m.DeliverTo(ctx, event, nil)
}

// DeliverTo 只投递到指定名字的下游，names 为空时投递到全部
func (m MultiSink) DeliverTo(ctx context.Context, event LeaseEvent, names []string) error {
	var (
		failed   []string
		firstErr error
	)
	for _, ns := range m {
		if len(names) > 0 && !slices.Contains(names, ns.Name) {
			continue
		}
		if err := ns.Sink.Deliver(ctx, event); err != nil {
			failed = append(failed, ns.Name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil {
		return nil
	}
	return &DeliveryError{Sinks: failed, Err: firstErr}
}

// ========== 异步发送 ==========

// AsyncEmitter 缓冲队列 + 后台投递；缓冲已满或投递失败的事件写入失败表等待重试
type AsyncEmitter struct {
	sink           EventSink
	db             *gorm.DB
	ch             chan LeaseEvent
	deliverTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	pending sync.WaitGroup // 后台写失败表的协程
}

func NewAsyncEmitter(sink EventSink, db *gorm.DB, buffer int) *AsyncEmitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncEmitter{
		sink:           sink,
		db:             db,
		ch:             make(chan LeaseEvent, buffer),
		deliverTimeout: 5 * time.Second,
	}
}

// Start 启动后台投递协程
func (e *AsyncEmitter) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for event := range e.ch {
			e.deliver(event)
		}
	}()
}

// Emit 非阻塞；缓冲区已满时失败记录交给后台协程落库
func (e *AsyncEmitter) Emit(event LeaseEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		// 只在停机之后出现
		go e.recordFailure(event, fmt.Errorf("事件发送器已关闭"))
		return
	}
	select {
	case e.ch <- event:
	default:
		e.pending.Add(1)
		go func() {
			defer e.pending.Done()
			e.recordFailure(event, fmt.Errorf("事件缓冲区已满"))
		}()
	}
}

// Stop 停止接收新事件，投递完缓冲区中的剩余事件并等待失败记录写完
func (e *AsyncEmitter) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()
	e.wg.Wait()
	e.pending.Wait()
}

func (e *AsyncEmitter) deliver(event LeaseEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
	defer cancel()
	if err := e.sink.Deliver(ctx, event); err != nil {
		e.recordFailure(event, err)
	}
}

func (e *AsyncEmitter) recordFailure(event LeaseEvent, cause error) {
	log := logger.WithLease(event.LeaseID, event.UnitID).WithField("event", event.Name)
	log.WithError(cause).Warn("租约事件投递失败，已记录待重试")

	if e.db == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("序列化租约事件失败")
		return
	}
	failure := &models.LeaseEventFailure{
		EventName: event.Name,
		LeaseID:   event.LeaseID,
		Payload:   datatypes.JSON(payload),
		Sinks:     strings.Join(failedSinks(cause), ","),
		Attempts:  1,
		LastError: truncate(cause.Error(), 500),
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.deliverTimeout)
	defer cancel()
	if err := e.db.WithContext(ctx).Create(failure).Error; err != nil {
		log.WithError(err).Error("保存失败事件记录失败")
	}
}

// RetryFailed 重新投递失败事件，只投递到上次失败的下游，成功后删除记录，返回成功条数
func (e *AsyncEmitter) RetryFailed(ctx context.Context, limit int) (int, error) {
	if e.db == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}

	var failures []models.LeaseEventFailure
	if err := e.db.WithContext(ctx).Order("id ASC").Limit(limit).Find(&failures).Error; err != nil {
		return 0, err
	}

	delivered := 0
	for i := range failures {
		f := &failures[i]
		var event LeaseEvent
		if err := json.Unmarshal(f.Payload, &event); err != nil {
			logger.GetLogger().WithError(err).Errorf("失败事件 %d 载荷无法解析，已丢弃", f.ID)
			if err := e.db.WithContext(ctx).Delete(f).Error; err != nil {
				return delivered, fmt.Errorf("删除失败事件 %d 出错: %w", f.ID, err)
			}
			continue
		}

		deliverCtx, cancel := context.WithTimeout(ctx, e.deliverTimeout)
		err := e.redeliver(deliverCtx, event, splitSinks(f.Sinks))
		cancel()
		if err != nil {
			updates := map[string]interface{}{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": truncate(err.Error(), 500),
			}
			if sinks := failedSinks(err); len(sinks) > 0 {
				updates["sinks"] = strings.Join(sinks, ",")
			}
			if err := e.db.WithContext(ctx).Model(f).Updates(updates).Error; err != nil {
				return delivered, fmt.Errorf("更新失败事件 %d 出错: %w", f.ID, err)
			}
			continue
		}
		if err := e.db.WithContext(ctx).Delete(f).Error; err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (e *AsyncEmitter) redeliver(ctx context.Context, event LeaseEvent, sinks []string) error {
	if multi, ok := e.sink.(MultiSink); ok && len(sinks) > 0 {
		return multi.DeliverTo(ctx, event, sinks)
	}
	return e.sink.Deliver(ctx, event)
}

func failedSinks(err error) []string {
	var de *DeliveryError
	if stderrors.As(err, &de) {
		return de.Sinks
	}
	return nil
}

func splitSinks(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
