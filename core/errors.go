package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）、模块（Module）和消息（Message）
//   - 支持 errors.Is：Module 与 Code 相同即视为同一类错误
//   - 支持 errors.Unwrap：Err 保存底层原因
//
// 使用场景：
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
//   - Embedding 错误：PARSE_FAILURE, RATE_LIMIT_EXCEEDED, TRANSPORT_FAILURE
//   - Profile 错误：DIMENSION_MISMATCH, NO_JUDGMENTS, EMPTY_EMBEDDING, MALFORMED_EMBEDDING
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "RATE_LIMIT_EXCEEDED"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "embedding", "profile"）
	Err     error  // 底层原因（可选）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is 按 Module + Code 匹配，使 errors.Is(err, ErrRateLimitExceeded) 对包装后的错误同样成立。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的第一个 DomainError，如果没有则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// Wrap 基于 sentinel 创建带上下文与底层原因的领域错误。
// 返回值满足 errors.Is(err, sentinel)。
func Wrap(sentinel *DomainError, cause error, format string, args ...any) *DomainError {
	msg := sentinel.Message
	if format != "" {
		msg = sentinel.Message + ": " + fmt.Sprintf(format, args...)
	}
	return &DomainError{
		Module:  sentinel.Module,
		Code:    sentinel.Code,
		Message: msg,
		Err:     cause,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// Embedding API 错误代码
	ErrorCodeParseFailure      = "PARSE_FAILURE"       // 响应中缺少或无法解析向量
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 超过最大重试次数仍被限流
	ErrorCodeTransportFailure  = "TRANSPORT_FAILURE"   // 非 2xx / 网络错误

	// 画像错误代码
	ErrorCodeDimensionMismatch  = "DIMENSION_MISMATCH"
	ErrorCodeNoJudgments        = "NO_JUDGMENTS"
	ErrorCodeEmptyEmbedding     = "EMPTY_EMBEDDING"
	ErrorCodeMalformedEmbedding = "MALFORMED_EMBEDDING"
)

// 模块名称常量
const (
	ModuleStore     = "store"     // 存储模块
	ModuleEmbedding = "embedding" // 外部向量 API
	ModuleProfile   = "profile"   // 类目/物品/用户画像
	ModuleRank      = "rank"      // 排序
)

// Embedding 错误
var (
	ErrParseFailure      = NewDomainError(ModuleEmbedding, ErrorCodeParseFailure, "embedding: malformed response")
	ErrRateLimitExceeded = NewDomainError(ModuleEmbedding, ErrorCodeRateLimitExceeded, "embedding: rate limit exceeded")
	ErrTransportFailure  = NewDomainError(ModuleEmbedding, ErrorCodeTransportFailure, "embedding: transport failure")
)

// Profile 错误
var (
	ErrDimensionMismatch  = NewDomainError(ModuleProfile, ErrorCodeDimensionMismatch, "profile: vector dimension mismatch")
	ErrNoJudgments        = NewDomainError(ModuleProfile, ErrorCodeNoJudgments, "profile: no usable judgments")
	ErrEmptyEmbedding     = NewDomainError(ModuleProfile, ErrorCodeEmptyEmbedding, "profile: embedding not computed")
	ErrMalformedEmbedding = NewDomainError(ModuleProfile, ErrorCodeMalformedEmbedding, "profile: malformed stored embedding")
)

func hasCode(err error, module, code string) bool {
	domainErr := GetDomainError(err)
	if domainErr == nil {
		return false
	}
	return domainErr.Module == module && domainErr.Code == code
}

// IsNotFound 检查错误是否为 NOT_FOUND（任意模块）
func IsNotFound(err error) bool {
	domainErr := GetDomainError(err)
	return domainErr != nil && domainErr.Code == ErrorCodeNotFound
}

// IsRateLimited 检查错误是否为限流重试耗尽
func IsRateLimited(err error) bool {
	return hasCode(err, ModuleEmbedding, ErrorCodeRateLimitExceeded)
}

// IsTransportFailure 检查错误是否为传输失败
func IsTransportFailure(err error) bool {
	return hasCode(err, ModuleEmbedding, ErrorCodeTransportFailure)
}

// IsParseFailure 检查错误是否为响应解析失败
func IsParseFailure(err error) bool {
	return hasCode(err, ModuleEmbedding, ErrorCodeParseFailure)
}

// IsDimensionMismatch 检查错误是否为向量维度不一致
func IsDimensionMismatch(err error) bool {
	return hasCode(err, ModuleProfile, ErrorCodeDimensionMismatch)
}

// IsNoJudgments 检查错误是否为用户没有可用评价
func IsNoJudgments(err error) bool {
	return hasCode(err, ModuleProfile, ErrorCodeNoJudgments)
}

// IsEmptyEmbedding 检查错误是否为向量尚未计算
func IsEmptyEmbedding(err error) bool {
	return hasCode(err, ModuleProfile, ErrorCodeEmptyEmbedding)
}

// IsMalformedEmbedding 检查错误是否为存储的向量无法解析
func IsMalformedEmbedding(err error) bool {
	return hasCode(err, ModuleProfile, ErrorCodeMalformedEmbedding)
}
