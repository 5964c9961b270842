package dto

// SweepResult 一次扫描的执行结果
type SweepResult struct {
	Scanned  int      `json:"scanned"`            // 命中的凭据数
	Swept    int      `json:"swept"`              // 成功处理的凭据数
	Failed   int      `json:"failed"`             // 处理失败的凭据数
	Errors   []string `json:"errors,omitempty"`   // 失败明细
	Notified bool     `json:"notified"`           // 是否发出了管理员通知
}
