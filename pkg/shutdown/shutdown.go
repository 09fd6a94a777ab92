package shutdown

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/pkg/retry"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	policy  retry.Policy
	handler Handler
}

// Manager 优雅关闭管理器
//
// 回调按注册顺序串行执行，每个回调在自己的重试策略下运行。
// 与并发执行不同，这里保证例如"先撤单，再关闭行情源"的顺序。
type Manager struct {
	log *logrus.Entry

	mu        sync.Mutex
	callbacks []entry
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager(log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.WithField("component", "shutdown")
	}
	return &Manager{
		log:       log,
		callbacks: make([]entry, 0),
	}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, policy retry.Policy, handler Handler) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, entry{name: name, policy: policy, handler: handler})
}

// Len 已注册的回调数量
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.callbacks)
}

// Shutdown 依次执行所有关闭回调（阻塞调用，只执行一次）
//
// 使用无限重试策略的回调只会在成功或 ctx 取消时返回；有限重试失败的回调会被记录，
// 但不会阻止后续回调执行。返回所有失败回调的错误。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		m.log.Info("没有注册的关闭回调")
		return nil
	}

	m.log.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var errs []error
	for _, cb := range callbacks {
		if err := retry.Do(ctx, cb.policy, m.log, cb.name, cb.handler); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		m.log.Warnf("关闭完成，%d 个回调失败", len(errs))
		return errors.Join(errs...)
	}
	m.log.Info("所有关闭回调已完成")
	return nil
}
