package middleware

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web/context"
)

// DefaultMaxRequestBytes 问答请求体上限
const DefaultMaxRequestBytes int64 = 1 << 20

// allowedContentTypes 允许的Content-Type（忽略charset等参数）
var allowedContentTypes = []string{
	"application/json",
	"text/plain",
}

// RequestGuard 请求体校验中间件：限制大小并检查Content-Type
func RequestGuard(maxBytes int64) func(*context.Context) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBytes
	}
	return func(ctx *context.Context) {
		if ctx.Request.Method != http.MethodPost {
			return
		}

		if detectOversizedRequest(ctx, maxBytes) {
			ctx.Output.SetStatus(http.StatusRequestEntityTooLarge)
			ctx.Output.JSON(map[string]interface{}{
				"success": false,
				"error":   "Request size exceeds maximum allowed limit",
				"type":    "request_too_large",
			}, false, false)
			return
		}

		if !validateContentType(ctx) {
			ctx.Output.SetStatus(http.StatusUnsupportedMediaType)
			ctx.Output.JSON(map[string]interface{}{
				"success": false,
				"error":   "Content-Type header is invalid or unsupported",
				"type":    "invalid_content_type",
			}, false, false)
			return
		}
	}
}

func detectOversizedRequest(ctx *context.Context, maxBytes int64) bool {
	if ctx.Request.ContentLength > maxBytes {
		return true
	}

	// 对于无法确定大小的请求，检查实际读取的数据量
	if ctx.Request.ContentLength == -1 && ctx.Input.RequestBody != nil {
		return int64(len(ctx.Input.RequestBody)) > maxBytes
	}
	return false
}

func validateContentType(ctx *context.Context) bool {
	contentType := ctx.Request.Header.Get("Content-Type")

	// 如果没有Content-Type，默认允许
	if contentType == "" {
		return true
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	for _, allowed := range allowedContentTypes {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}
