package constants

import "fmt"

// CredentialState 凭据生命周期状态
type CredentialState string

const (
	CredentialStateAvailable    CredentialState = "available"     // 可分配
	CredentialStateAssigned     CredentialState = "assigned"      // 已分配给订单行
	CredentialStateExpired      CredentialState = "expired"       // 已过期
	CredentialStatePendingReset CredentialState = "pending_reset" // 等待重置账号
)

var credentialStateName = map[CredentialState]string{
	CredentialStateAvailable:    "Available",
	CredentialStateAssigned:     "Assigned",
	CredentialStateExpired:      "Expired",
	CredentialStatePendingReset: "PendingReset",
}

// CredentialStateToString state → 展示名
func CredentialStateToString(state CredentialState) string {
	if name, ok := credentialStateName[state]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%s)", string(state))
}

// IsValidCredentialState 是否是合法状态值
func IsValidCredentialState(state CredentialState) bool {
	_, ok := credentialStateName[state]
	return ok
}

// DeliveryStatus 凭据交付(邮件发送)结果
type DeliveryStatus string

const (
	DeliveryStatusNone   DeliveryStatus = "none"   // 尚未发送
	DeliveryStatusSent   DeliveryStatus = "sent"   // 已发送成功
	DeliveryStatusFailed DeliveryStatus = "failed" // 发送失败, 等待人工重发
)
