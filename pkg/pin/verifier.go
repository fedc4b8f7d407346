package pin

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
	"github.com/iniwex5/keyguard-go/pkg/sim"
)

var (
	ErrTooShort    = errors.New("pin too short")
	ErrPending     = errors.New("verification already in flight")
	ErrInvalidated = errors.New("verifier invalidated")
)

// Poster 把结果投递回 owner 协程 (队列交接，不直接跨协程回调)
type Poster interface {
	Post(fn func()) bool
}

// Request 一次校验请求
type Request struct {
	PIN         string
	Correlation uuid.UUID
}

// Verifier 每个界面实例一个，同一时间最多一个在途校验
// 远端调用在独立协程中执行，可能阻塞；本层不设超时。
type Verifier struct {
	ctx      context.Context
	supplier sim.PinSupplier
	poster   Poster
	log      *zap.Logger

	mu          sync.Mutex
	pending     *Request
	invalidated bool
}

func NewVerifier(ctx context.Context, supplier sim.PinSupplier, poster Poster) *Verifier {
	return &Verifier{
		ctx:      ctx,
		supplier: supplier,
		poster:   poster,
		log:      logger.Named("pin"),
	}
}

// Submit 提交 PIN 进行异步校验
// 少于 MinLen 位立即返回 ErrTooShort，不会访问远端；已有在途请求时返回 ErrPending。
// onResult 只会在 poster 的执行上下文中被调用，且界面失效后不会被调用。
func (v *Verifier) Submit(pin string, onResult func(ok bool)) error {
	if len(pin) < MinLen {
		return ErrTooShort
	}

	v.mu.Lock()
	if v.invalidated {
		v.mu.Unlock()
		return ErrInvalidated
	}
	if v.pending != nil {
		v.mu.Unlock()
		return ErrPending
	}
	req := Request{PIN: pin, Correlation: uuid.New()}
	v.pending = &req
	v.mu.Unlock()

	v.log.Debug("开始校验 SIM PIN", logger.Stringer("id", req.Correlation), logger.Int("len", len(pin)))
	go v.run(req, onResult)
	return nil
}

func (v *Verifier) run(req Request, onResult func(bool)) {
	ok, err := v.supplier.SupplyPin(v.ctx, req.PIN)
	if err != nil {
		// 通信失败与 PIN 错误对调用方不作区分
		v.log.Warn("SIM PIN 校验通信失败", logger.Stringer("id", req.Correlation), logger.Err(err))
		ok = false
	}
	if !v.poster.Post(func() { v.deliver(req.Correlation, ok, onResult) }) {
		v.log.Debug("结果投递失败，队列已停止", logger.Stringer("id", req.Correlation))
	}
}

func (v *Verifier) deliver(id uuid.UUID, ok bool, onResult func(bool)) {
	v.mu.Lock()
	stale := v.invalidated || v.pending == nil || v.pending.Correlation != id
	if !stale {
		v.pending = nil
	}
	v.mu.Unlock()

	if stale {
		v.log.Debug("丢弃过期的校验结果", logger.Stringer("id", id))
		return
	}
	v.log.Debug("SIM PIN 校验完成", logger.Stringer("id", id), logger.Bool("ok", ok))
	onResult(ok)
}

// Pending 是否有在途校验 (用于控制进度提示)
func (v *Verifier) Pending() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending != nil
}

// Invalidate 界面销毁时调用，之后到达的结果全部丢弃
func (v *Verifier) Invalidate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.invalidated = true
	v.pending = nil
}
