package meta

import (
	"context"
	"sync"
)

// 元信息对象，并发安全
type metadata struct {
	carrier map[interface{}]interface{}
	mu      sync.RWMutex
}

func (c *metadata) Value(key interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.carrier[key]
}

func (c *metadata) WithValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrier[key] = value
}

type contextKey struct{}

var metaContextKey = contextKey{}

type requestIDKey struct{}

// Begin 开启元信息对象
// 如父类上下文中已存在元信息对象，则直接返回父类上下文；
// 否则返回携带新元信息对象的子上下文。应尽量靠近根上下文调用
func Begin(parent context.Context) context.Context {
	if parent.Value(metaContextKey) != nil {
		return parent
	}
	return context.WithValue(parent, metaContextKey, &metadata{
		carrier: make(map[interface{}]interface{}),
	})
}

func metadataFrom(parent context.Context) *metadata {
	m, _ := parent.Value(metaContextKey).(*metadata)
	return m
}

// WithValue 设置键值对至上下文的元信息对象，未调用Begin时忽略
func WithValue(parent context.Context, key, val interface{}) {
	if m := metadataFrom(parent); m != nil {
		m.WithValue(key, val)
	}
}

// Value 从上下文的元信息对象中获取对应key的值
func Value(parent context.Context, key interface{}) interface{} {
	if m := metadataFrom(parent); m != nil {
		return m.Value(key)
	}
	return nil
}

// SetRequestID records the request id carried through the request context.
func SetRequestID(ctx context.Context, id string) {
	WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id recorded by SetRequestID, if any.
func RequestID(ctx context.Context) string {
	id, _ := Value(ctx, requestIDKey{}).(string)
	return id
}
