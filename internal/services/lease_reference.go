package services

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const maxReferenceNameLen = 24

// GenerateReference 生成可读的租约编号，如 LEASE-ACME-TRADING-0A1B2C3D
func GenerateReference(prefix, tenantName string) string {
	if prefix == "" {
		prefix = "LEASE"
	}
	token := uuid.New()
	return prefix + "-" + normalizeTenantName(tenantName) + "-" + strings.ToUpper(hex.EncodeToString(token[:4]))
}

// 只保留 ASCII 字母数字，其余连续字符折叠为一个 '-'
func normalizeTenantName(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToUpper(name) {
		isAlnum := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlnum {
			pendingDash = b.Len() > 0
			continue
		}
		if pendingDash {
			b.WriteByte('-')
			pendingDash = false
		}
		b.WriteRune(r)
	}

	normalized := b.String()
	if len(normalized) > maxReferenceNameLen {
		normalized = strings.TrimRight(normalized[:maxReferenceNameLen], "-")
	}
	if normalized == "" {
		return "TENANT"
	}
	return normalized
}
