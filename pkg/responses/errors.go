package responses

import "fmt"

// 错误码
const (
	CodeSuccess        = 2000000
	CodePartialSuccess = 2060000 // 部分成功(批量分配按行返回)
	CodeBadRequest     = 4000000
	CodeNotFound       = 4040000
	CodeConflict       = 4009000
	CodeInternalError  = 5000000
	CodeDatabaseError  = 5001000
	CodeCryptoError    = 5002000

	CodeValidationError   = 4220000 // 数据校验失败(登录名/密码为空, 登录名重复等)
	CodeInvalidTransition = 4091000 // 非法状态流转
	CodeNotAvailable      = 4092000 // 凭据池已空, 预期内的可恢复结果
	CodeDeliveryError     = 5031000 // 凭据邮件发送失败(不回滚分配)
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New 创建新错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Newf 创建带格式化消息的错误
func Newf(code int, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsCode 判断错误是否携带指定业务码
func IsCode(err error, code int) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// 预定义错误
var (
	ErrBadRequest    = New(CodeBadRequest, "请求参数错误")
	ErrNotFound      = New(CodeNotFound, "资源不存在")
	ErrConflict      = New(CodeConflict, "资源冲突")
	ErrInternalError = New(CodeInternalError, "内部服务器错误")
	ErrDatabaseError = New(CodeDatabaseError, "数据库错误")

	ErrRecordNotFound  = New(CodeNotFound, "记录不存在")
	ErrLoginExists     = New(CodeValidationError, "登录名在该服务下已存在")
	ErrEmptyLogin      = New(CodeValidationError, "登录名不能为空")
	ErrEmptySecret     = New(CodeValidationError, "凭据密码不能为空")
	ErrNotAvailable    = New(CodeNotAvailable, "没有可用凭据")
	ErrNoContactEmail  = New(CodeValidationError, "客户没有配置联系邮箱")
	ErrDeliveryFailed  = New(CodeDeliveryError, "凭据邮件发送失败")
	ErrBoundCredential = New(CodeInvalidTransition, "凭据仍绑定订单行, 不允许直接置为可用")
)
