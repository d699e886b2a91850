package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leasehub/internal/models"
	"leasehub/pkg/errors"
	"leasehub/pkg/logger"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// EventRetrier 重新投递失败事件
type EventRetrier interface {
	RetryFailed(ctx context.Context, limit int) (int, error)
}

// SweepResult 一次清扫的结果
type SweepResult struct {
	UpdatedCount int64     `json:"updated_count"`
	Batches      int       `json:"batches"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Error        string    `json:"error,omitempty"`
}

// SweeperStatus 调度器状态
type SweeperStatus struct {
	Running     bool         `json:"running"`
	SweepCron   string       `json:"sweep_cron"`
	RetryCron   string       `json:"retry_cron"`
	NextSweepAt *time.Time   `json:"next_sweep_at,omitempty"`
	NextRetryAt *time.Time   `json:"next_retry_at,omitempty"`
	LastSweep   *SweepResult `json:"last_sweep,omitempty"`
}

// SweeperOptions 清扫调度参数
type SweeperOptions struct {
	SweepCron  string
	RetryCron  string
	BatchSize  int
	TxTimeout  time.Duration
	TxRetries  int
	RetryLimit int
}

// ExpirySweeper 到期清扫：把已过结束时间的 active 租约批量置为 expired
type ExpirySweeper struct {
	db      *gorm.DB
	store   *LeaseStore
	events  EventEmitter
	retrier EventRetrier
	cron    *cron.Cron
	opts    SweeperOptions
	now     func() time.Time

	mu         sync.RWMutex
	running    bool
	sweepEntry cron.EntryID
	retryEntry cron.EntryID
	lastResult *SweepResult
}

func NewExpirySweeper(db *gorm.DB, events EventEmitter, retrier EventRetrier, opts SweeperOptions) *ExpirySweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 30 * time.Second
	}
	if opts.RetryLimit <= 0 {
		opts.RetryLimit = 100
	}
	return &ExpirySweeper{
		db:      db,
		store:   NewLeaseStore(db),
		events:  events,
		retrier: retrier,
		cron:    cron.New(),
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock 替换时钟，测试使用
func (s *ExpirySweeper) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// Start 注册定时清扫与失败事件重试并启动 cron
func (s *ExpirySweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("清扫调度器已经在运行")
	}

	entryID, err := s.cron.AddFunc(s.opts.SweepCron, s.runScheduledSweep)
	if err != nil {
		return fmt.Errorf("无效的清扫cron表达式 %q: %v", s.opts.SweepCron, err)
	}
	s.sweepEntry = entryID

	if s.retrier != nil && s.opts.RetryCron != "" {
		entryID, err := s.cron.AddFunc(s.opts.RetryCron, s.runScheduledRetry)
		if err != nil {
			s.cron.Remove(s.sweepEntry)
			return fmt.Errorf("无效的事件重试cron表达式 %q: %v", s.opts.RetryCron, err)
		}
		s.retryEntry = entryID
	}

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("租约到期清扫调度器已启动，cron: %s", s.opts.SweepCron)
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	logger.GetLogger().Info("租约到期清扫调度器已停止")
}

// RunSweep 手动触发，仅管理员可用
func (s *ExpirySweeper) RunSweep(ctx context.Context, scope CallerScope) (*SweepResult, error) {
	if !scope.IsPrivileged() {
		return nil, errors.AccessDenied("只有管理员可以手动触发到期清扫")
	}
	logger.GetLogger().Infof("用户 %s 手动触发到期清扫", scope.Username)
	return s.Sweep(ctx)
}

// Sweep 分批清扫，每批一个有界事务，直到某批不足 BatchSize
func (s *ExpirySweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{StartedAt: now}

	for {
		expired, affected, err := s.sweepBatch(ctx, now)
		if err != nil {
			result.FinishedAt = s.now()
			result.Error = errors.MessageOf(err)
			s.recordResult(result)
			logger.GetLogger().WithError(err).WithField("updated_count", result.UpdatedCount).Error("租约到期清扫失败")
			return result, err
		}
		if len(expired) == 0 {
			break
		}

		result.Batches++
		result.UpdatedCount += affected
		for i := range expired {
			if s.events != nil {
				s.events.Emit(newLeaseEvent(EventLeaseExpired, &expired[i], now))
			}
		}

		if len(expired) < s.opts.BatchSize || affected == 0 {
			break
		}
	}

	result.FinishedAt = s.now()
	s.recordResult(result)
	logger.GetLogger().WithField("updated_count", result.UpdatedCount).Infof("租约到期清扫完成，共 %d 批", result.Batches)
	return result, nil
}

func (s *ExpirySweeper) sweepBatch(ctx context.Context, now time.Time) ([]models.Lease, int64, error) {
	var (
		expired  []models.Lease
		affected int64
		err      error
	)
	for attempt := 0; attempt <= s.opts.TxRetries; attempt++ {
		txCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
		err = s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			expired, affected, txErr = s.store.WithTx(tx).ExpireBatch(txCtx, now, s.opts.BatchSize)
			return txErr
		})
		cancel()
		if err == nil || !isRetryableTxError(err) {
			break
		}
	}
	if err != nil {
		return nil, 0, classifyTxError(err)
	}
	return expired, affected, nil
}

// 失败已在 Sweep 内记录日志
func (s *ExpirySweeper) runScheduledSweep() {
	_, _ = s.Sweep(context.Background())
}

func (s *ExpirySweeper) runScheduledRetry() {
	delivered, err := s.retrier.RetryFailed(context.Background(), s.opts.RetryLimit)
	if err != nil {
		logger.GetLogger().WithError(err).Error("重试失败事件出错")
		return
	}
	if delivered > 0 {
		logger.GetLogger().Infof("已重新投递 %d 个失败事件", delivered)
	}
}

func (s *ExpirySweeper) recordResult(result *SweepResult) {
	copied := *result
	s.mu.Lock()
	s.lastResult = &copied
	s.mu.Unlock()
}

// Status 当前调度状态
func (s *ExpirySweeper) Status() SweeperStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SweeperStatus{
		Running:   s.running,
		SweepCron: s.opts.SweepCron,
		RetryCron: s.opts.RetryCron,
		LastSweep: s.lastResult,
	}
	if s.running {
		if entry := s.cron.Entry(s.sweepEntry); entry.ID != 0 {
			next := entry.Next
			status.NextSweepAt = &next
		}
		if entry := s.cron.Entry(s.retryEntry); entry.ID != 0 {
			next := entry.Next
			status.NextRetryAt = &next
		}
	}
	return status
}
