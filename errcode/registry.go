package errcode

import (
	"fmt"
	"sync"
)

// Registry 错误码注册表（防止错误码冲突）
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msgKey
}

var globalRegistry = &Registry{
	codes: make(map[int]string),
}

// Register 注册错误码到全局注册表
// 同一 code 重复注册相同的 module:msgKey 是幂等的，不同则 panic
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register 注册错误码
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s", err.Module(), err.MsgKey())
	if existing, ok := r.codes[err.Code()]; ok && existing != key {
		panic(fmt.Sprintf(
			"error code conflict: code %d is already registered as %s, cannot register as %s",
			err.Code(), existing, key,
		))
	}
	r.codes[err.Code()] = key
	return err
}

// GetAll 获取所有已注册的错误码
func (r *Registry) GetAll() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int]string, len(r.codes))
	for k, v := range r.codes {
		out[k] = v
	}
	return out
}

// All 返回全局注册表中的错误码
func All() map[int]string {
	return globalRegistry.GetAll()
}
