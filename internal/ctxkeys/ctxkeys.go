// Package ctxkeys 定义在 context 中传递的会话信息。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	sessionKey contextKey = "session"
	pairKey    contextKey = "pair"
)

// WithSession 设置会话 ID
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// Session 获取会话 ID
func Session(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithPair 设置当前处理的通道对（如 audio_in->audio_out）
func WithPair(ctx context.Context, pair string) context.Context {
	return context.WithValue(ctx, pairKey, pair)
}

// Pair 获取通道对
func Pair(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(pairKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
