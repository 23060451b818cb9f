package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"OpenDCA-Chain/pkg/logger"
)

// Publisher 把事件投递给下游索引器。投递是"发后即忘"的：
// 失败只记录日志，绝不回滚已提交的业务状态。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher 把事件写入审计日志，是默认的本地实现。
type LogPublisher struct{}

// NewLogPublisher 创建 LogPublisher。
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

// Publish 实现 Publisher 接口。
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	logger.Audit().Info("事件通知",
		slog.String("event_id", event.EventID),
		slog.String("type", string(event.Type)),
		slog.String("creator", event.Creator),
		slog.Uint64("agent_id", event.AgentID),
	)
	return nil
}

// Close 对日志投递无需操作。
func (p *LogPublisher) Close() error { return nil }

// MemoryPublisher 把事件保存在内存里，供测试断言。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher 创建 MemoryPublisher。
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 实现 Publisher 接口。
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

// Events 返回已投递事件的副本。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// ByType 返回指定类型的事件。
func (p *MemoryPublisher) ByType(eventType EventType) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []Event
	for _, event := range p.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

// Close 对内存投递无需操作。
func (p *MemoryPublisher) Close() error { return nil }

// Fanout 把事件广播给多个投递器。
type Fanout struct {
	publishers []Publisher
}

// NewFanout 创建 Fanout。
func NewFanout(publishers ...Publisher) *Fanout {
	set := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			set = append(set, p)
		}
	}
	return &Fanout{publishers: set}
}

// Publish 将事件投递到所有注册的投递器。
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close 关闭所有投递器。
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*MemoryPublisher)(nil)
	_ Publisher = (*Fanout)(nil)
)
