package services

import (
	"time"

	"leasehub/internal/models"
)

// Interval 半开区间 [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps 首尾相接（一个的结束等于另一个的开始）不算重叠
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func leaseInterval(l *models.Lease) Interval {
	return Interval{Start: l.StartDate, End: l.EndDate}
}

// FindConflict 在同一单元的已有租约中查找第一个与候选区间重叠的有效租约。
// 只比较 active 且未软删除的记录，excludeID 用于更新时排除自身。
func FindConflict(unitID uint, candidate Interval, existing []models.Lease, excludeID string) *models.Lease {
	for i := range existing {
		l := &existing[i]
		if l.UnitID != unitID || l.Status != models.LeaseStatusActive || l.DeletedAt.Valid {
			continue
		}
		if excludeID != "" && l.ID == excludeID {
			continue
		}
		if candidate.Overlaps(leaseInterval(l)) {
			return l
		}
	}
	return nil
}
