package services

import (
	"time"

	"leasehub/internal/models"
	"leasehub/pkg/errors"
)

// IsValidLeaseStatus 检查租约状态是否有效
func IsValidLeaseStatus(status string) bool {
	switch status {
	case models.LeaseStatusActive, models.LeaseStatusExpired, models.LeaseStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal expired 与 cancelled 不能再迁移
func IsTerminal(status string) bool {
	return status == models.LeaseStatusExpired || status == models.LeaseStatusCancelled
}

// EffectiveStatus 读时修正：已过结束时间但尚未被清扫的 active 租约视为 expired
func EffectiveStatus(l *models.Lease, now time.Time) string {
	if l.Status == models.LeaseStatusActive && l.EndDate.Before(now) {
		return models.LeaseStatusExpired
	}
	return l.Status
}

// ApplyReadCorrection 只修改内存中的副本，不落库
func ApplyReadCorrection(l *models.Lease, now time.Time) *models.Lease {
	l.Status = EffectiveStatus(l, now)
	return l
}

// ValidateTransition 系统侧状态迁移校验（清扫、取消）
func ValidateTransition(l *models.Lease, to string, now time.Time) error {
	if !IsValidLeaseStatus(to) {
		return errors.Validation("未知的租约状态: %s", to)
	}
	from := l.Status
	if from == to {
		return nil
	}
	if IsTerminal(from) {
		return errors.InvalidTransition("租约已处于终止状态 %s，不能变更为 %s", from, to)
	}
	switch to {
	case models.LeaseStatusExpired:
		if now.Before(l.EndDate) {
			return errors.InvalidTransition("租约尚未到期，不能置为 expired")
		}
		return nil
	case models.LeaseStatusCancelled:
		return nil
	default:
		return errors.InvalidTransition("不支持从 %s 变更为 %s", from, to)
	}
}

// ValidateClientTransition 客户端请求的状态迁移：expired 只能由清扫产生
func ValidateClientTransition(from, to string) error {
	if !IsValidLeaseStatus(to) {
		return errors.Validation("未知的租约状态: %s", to)
	}
	if from == to {
		return nil
	}
	if IsTerminal(from) {
		return errors.InvalidTransition("租约已处于终止状态 %s，不能变更为 %s", from, to)
	}
	if to == models.LeaseStatusExpired {
		return errors.InvalidTransition("expired 状态只能由到期清扫设置")
	}
	if to != models.LeaseStatusCancelled {
		return errors.InvalidTransition("不支持从 %s 变更为 %s", from, to)
	}
	return nil
}
