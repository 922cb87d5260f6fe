package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 可包装底层错误（Err），errors.Is 按 Module+Code 匹配
//
// 使用场景：
//   - Store 错误：NOT_FOUND
//   - Search 错误：UNAVAILABLE（上游检索失败）、NOT_FOUND（候选池为空）
//   - Request 错误：INVALID_INPUT
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "UNAVAILABLE"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "search"）
	Err     error  // 底层错误（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrSearchUnavailable) 对包装后的副本同样成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// Wrap 返回携带底层错误的副本，不修改哨兵本身。
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// GetDomainError 获取错误链上的 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore   = "store"
	ModuleSearch  = "search"
	ModuleRequest = "request"
)

var (
	// ErrNoCandidates 表示检索没有返回任何候选：提示用户放宽条件。
	ErrNoCandidates = NewDomainError(ModuleSearch, ErrorCodeNotFound, "no matching results")

	// ErrSearchUnavailable 表示上游检索失败：提示用户稍后重试。
	ErrSearchUnavailable = NewDomainError(ModuleSearch, ErrorCodeUnavailable, "service temporarily unavailable")

	// ErrInvalidRequest 表示请求参数不合法。
	ErrInvalidRequest = NewDomainError(ModuleRequest, ErrorCodeInvalidInput, "invalid request")
)

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	if de := GetDomainError(err); de != nil {
		return de.Code == ErrorCodeNotFound
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	if de := GetDomainError(err); de != nil {
		return de.Code == ErrorCodeUnavailable
	}
	return false
}
