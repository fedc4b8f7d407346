package keyguard

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
)

var ErrLooperStopped = errors.New("looper stopped")

// Looper 单协程任务队列，相当于锁屏的 UI 线程
// 队列无上限：任务内部再 Post 不会死锁。
type Looper struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	log  *zap.Logger
}

func NewLooper() *Looper {
	return &Looper{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		log:  logger.Named("looper"),
	}
}

// Start 在新协程中运行
func (l *Looper) Start() *Looper {
	go l.run()
	return l
}

// Post 投递任务，looper 已停止时返回 false
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Flush 等待此前投递的任务全部执行完
func (l *Looper) Flush(ctx context.Context) error {
	ch := make(chan struct{})
	if !l.Post(func() { close(ch) }) {
		return ErrLooperStopped
	}
	select {
	case <-ch:
		return nil
	case <-l.done:
		return ErrLooperStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止 looper，未执行的任务被丢弃
func (l *Looper) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.tasks = nil
	l.mu.Unlock()

	close(l.quit)
}

// Done looper 协程退出后关闭
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

func (l *Looper) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, fn := range batch {
			select {
			case <-l.quit:
				return
			default:
			}
			l.exec(fn)
		}

		select {
		case <-l.quit:
			return
		case <-l.wake:
		}
	}
}

func (l *Looper) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("looper 任务 panic", zap.Any("panic", r))
		}
	}()
	fn()
}
