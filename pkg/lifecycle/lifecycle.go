package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/pkg/retry"
	"github.com/betbot/keeper/pkg/shutdown"
)

// State 生命周期状态
type State int32

const (
	StateInit State = iota
	StateAwaitingStart
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAwaitingStart:
		return "AWAITING_START"
	case StateRunning:
		return "RUNNING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateTerminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ErrAlreadyStarted Run 只能调用一次
var ErrAlreadyStarted = errors.New("lifecycle already started")

// Func 生命周期回调
type Func func(ctx context.Context) error

// TickObserver 每个 tick 结束后回调（用于 metrics）
type TickObserver func(elapsed time.Duration, err error)

// Lifecycle keeper 的有限状态机驱动：
//
//	INIT → AWAITING_START（初始延迟）→ RUNNING（周期 tick）→ SHUTTING_DOWN → TERMINATED
//
// 约定：
//   - 只有一个 goroutine 驱动 tick，下一个 tick 必须等上一个完成，tick 之间永不重叠
//   - Run 的 ctx 被取消即视为收到终止信号；信号只在 tick 边界处理，正在执行的 tick 不会被打断
//     （tick 使用与信号解耦的 context）
//   - 只要 Run 开始执行，无论从哪个状态退出，关闭回调都会被执行
type Lifecycle struct {
	log *logrus.Entry

	initialDelay time.Duration
	startup      Func
	interval     time.Duration
	tick         Func
	observer     TickObserver

	shutdown *shutdown.Manager

	state   atomic.Int32
	started atomic.Bool
}

// New 创建生命周期驱动
func New(log *logrus.Entry) *Lifecycle {
	if log == nil {
		log = logrus.WithField("component", "lifecycle")
	}
	return &Lifecycle{
		log:      log,
		shutdown: shutdown.NewManager(log),
	}
}

// InitialDelay 第一次 tick 之前等待的时间（给节点等上游基础设施预热）
func (l *Lifecycle) InitialDelay(d time.Duration) *Lifecycle {
	l.initialDelay = d
	return l
}

// OnStartup 启动动作，在第一个 tick 之前执行且只执行一次
func (l *Lifecycle) OnStartup(fn Func) *Lifecycle {
	l.startup = fn
	return l
}

// Every 以固定间隔执行 tick
func (l *Lifecycle) Every(interval time.Duration, fn Func) *Lifecycle {
	l.interval = interval
	l.tick = fn
	return l
}

// OnTick 注册 tick 观察者
func (l *Lifecycle) OnTick(observer TickObserver) *Lifecycle {
	l.observer = observer
	return l
}

// OnShutdown 注册关闭动作，按注册顺序执行，失败时按 policy 重试
func (l *Lifecycle) OnShutdown(name string, policy retry.Policy, fn Func) *Lifecycle {
	l.shutdown.OnShutdown(name, policy, shutdown.Handler(fn))
	return l
}

// State 当前状态（可并发读取）
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

func (l *Lifecycle) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	if old != s {
		l.log.Infof("生命周期: %s → %s", old, s)
	}
}

// Run 执行完整生命周期，阻塞直到 TERMINATED
func (l *Lifecycle) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer l.setState(StateTerminated)

	runErr := l.run(ctx)
	if runErr != nil {
		l.log.Errorf("❌ 运行阶段异常结束: %v", runErr)
	}

	l.setState(StateShuttingDown)
	// 关闭阶段不响应终止信号：未完成的撤单被视为不安全状态
	shutdownErr := l.shutdown.Shutdown(context.WithoutCancel(ctx))

	return errors.Join(runErr, shutdownErr)
}

func (l *Lifecycle) run(ctx context.Context) error {
	l.setState(StateAwaitingStart)

	if l.initialDelay > 0 {
		l.log.Infof("等待初始延迟 %v ...", l.initialDelay)
		timer := time.NewTimer(l.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.log.Info("初始延迟期间收到终止信号")
			return nil
		case <-timer.C:
		}
	}

	// 启动动作与 tick 一样不被终止信号打断
	workCtx := context.WithoutCancel(ctx)

	if l.startup != nil {
		if err := l.startup(workCtx); err != nil {
			return fmt.Errorf("startup: %w", err)
		}
	}

	l.setState(StateRunning)

	if l.tick == nil || l.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Info("收到终止信号，停止 tick")
			return nil
		default:
		}

		l.runTick(workCtx)

		select {
		case <-ctx.Done():
			l.log.Info("收到终止信号，停止 tick")
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Lifecycle) runTick(ctx context.Context) {
	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tick panic: %v", r)
				l.log.Errorf("tick panic: %v\n%s", r, debug.Stack())
			}
		}()
		err = l.tick(ctx)
	}()

	elapsed := time.Since(start)
	if err != nil {
		l.log.Errorf("tick 失败（%v），等待下一个 tick: %v", elapsed, err)
	} else {
		l.log.Debugf("tick 完成（%v）", elapsed)
	}
	if l.observer != nil {
		l.observer(elapsed, err)
	}
}
