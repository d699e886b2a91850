package services

import (
	"leasehub/pkg/errors"
	"leasehub/pkg/jwt"
)

// CallerScope 已认证调用方的角色与物业范围
type CallerScope struct {
	UserID     uint
	Username   string
	Role       string
	PropertyID uint // 0 表示未绑定物业
}

// IsPrivileged 平台管理员不受物业范围限制
func (s CallerScope) IsPrivileged() bool {
	return s.Role == jwt.RoleAdmin
}

// CanAccessProperty 非管理员只能访问所属物业
func (s CallerScope) CanAccessProperty(propertyID uint) bool {
	if s.IsPrivileged() {
		return true
	}
	return s.PropertyID != 0 && s.PropertyID == propertyID
}

func (s CallerScope) requireWrite() error {
	switch s.Role {
	case jwt.RoleAdmin, jwt.RoleManager:
		return nil
	default:
		return errors.AccessDenied("当前角色无权修改租约")
	}
}

func (s CallerScope) requireProperty(propertyID uint) error {
	if !s.CanAccessProperty(propertyID) {
		return errors.AccessDenied("无权操作其他物业的单元")
	}
	return nil
}
