package limiter

import (
	"sync"
	"sync/atomic"

	"github.com/KOMKZ/go-yogan-throttle/logger"
	"go.uber.org/zap"
)

// eventBus single-goroutine dispatcher
type eventBus struct {
	listeners []EventListener
	eventChan chan Event
	closed    bool
	dropped   atomic.Uint64
	logger    *logger.CtxZapLogger
	mu        sync.RWMutex
	wg        sync.WaitGroup
}

// NewEventBus 创建事件总线，log 可为 nil
func NewEventBus(bufferSize int, log *logger.CtxZapLogger) EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}

	bus := &eventBus{
		eventChan: make(chan Event, bufferSize),
		logger:    log,
	}

	bus.wg.Add(1)
	go bus.dispatch()

	return bus
}

// Subscribe 订阅事件
func (b *eventBus) Subscribe(listener EventListener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.listeners = append(b.listeners, listener)
}

// Publish 非阻塞发布，缓冲区满时丢弃
func (b *eventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	select {
	case b.eventChan <- event:
	default:
		b.dropped.Add(1)
	}
}

// Dropped number of events discarded because the buffer was full
func (b *eventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close 关闭事件总线并等待已入队事件分发完成
func (b *eventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.eventChan)
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *eventBus) dispatch() {
	defer b.wg.Done()

	for event := range b.eventChan {
		b.mu.RLock()
		listeners := make([]EventListener, len(b.listeners))
		copy(listeners, b.listeners)
		b.mu.RUnlock()

		for _, listener := range listeners {
			b.notify(listener, event)
		}
	}
}

// notify isolates listener panics from the other listeners
func (b *eventBus) notify(listener EventListener, event Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("limiter event listener panicked",
				zap.String("event", string(event.Type())), zap.Any("panic", r))
		}
	}()
	listener.OnEvent(event)
}
