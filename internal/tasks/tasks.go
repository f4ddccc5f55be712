package tasks

import (
	"encoding/json"
	"time"
)

// 定义任务类型常量
const (
	TypeReaperReconcile = "reaper:reconcile" // 对账清扫: 把陈旧的 connected 成员落为 disconnected
	TypeReaperRetention = "reaper:retention" // 保留期清扫: 删除超过保留期的终态/闲置房间
)

// ReconcilePayload 定义对账清扫任务的数据结构
type ReconcilePayload struct {
	// MaxIdle 是连接被判定为陈旧前允许的最大静默时长
	MaxIdle time.Duration `json:"max_idle"`
}

// RetentionPayload 定义保留期清扫任务的数据结构
type RetentionPayload struct {
	// Retention 是终态房间被删除前保留的时长
	Retention time.Duration `json:"retention"`
	// IdleRetention 是非终态但完全闲置的房间被删除前保留的时长
	IdleRetention time.Duration `json:"idle_retention"`
}

// NewReconcileTask 序列化一个对账清扫任务的 payload
func NewReconcileTask(maxIdle time.Duration) ([]byte, error) {
	return json.Marshal(ReconcilePayload{MaxIdle: maxIdle})
}

// NewRetentionTask 序列化一个保留期清扫任务的 payload
func NewRetentionTask(retention, idleRetention time.Duration) ([]byte, error) {
	return json.Marshal(RetentionPayload{Retention: retention, IdleRetention: idleRetention})
}
