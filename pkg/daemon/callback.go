package daemon

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iniwex5/keyguard-go/pkg/logger"
)

// DefaultWakeDuration PokeWakelock(0) 时的亮屏保持时长
const DefaultWakeDuration = 10 * time.Second

// wakeCallback 记录锁屏发出的通知并维护亮屏保持的截止时间
type wakeCallback struct {
	log *zap.Logger
	now func() time.Time

	mu         sync.Mutex
	awakeUntil time.Time
	unlocks    int
}

func newWakeCallback() *wakeCallback {
	return &wakeCallback{
		log: logger.Named("callback"),
		now: time.Now,
	}
}

func (c *wakeCallback) KeyguardDone(authenticated bool) {
	c.mu.Lock()
	if authenticated {
		c.unlocks++
	}
	c.mu.Unlock()
	c.log.Info("锁屏完成", logger.Bool("authenticated", authenticated))
}

func (c *wakeCallback) PokeWakelock(d time.Duration) {
	if d <= 0 {
		d = DefaultWakeDuration
	}
	c.mu.Lock()
	until := c.now().Add(d)
	if until.After(c.awakeUntil) {
		c.awakeUntil = until
	}
	c.mu.Unlock()
	c.log.Debug("保持亮屏", logger.Duration("duration", d))
}

func (c *wakeCallback) KeyguardDoneDrawing() {
	c.log.Debug("锁屏首次绘制完成")
}

func (c *wakeCallback) TakeEmergencyCallAction() {
	c.log.Warn("请求紧急呼叫")
}

func (c *wakeCallback) GoToUnlockScreen() {
	c.log.Info("切换到解锁界面")
}

func (c *wakeCallback) GoToLockScreen() {
	c.log.Info("返回锁屏界面")
}

func (c *wakeCallback) RecreateMe() {
	c.log.Debug("锁屏界面已重建")
}

// AwakeUntil 亮屏保持的截止时间
func (c *wakeCallback) AwakeUntil() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awakeUntil
}

// Unlocks 认证成功的次数
func (c *wakeCallback) Unlocks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlocks
}
