// Package pin 实现 SIM PIN 的输入缓冲和异步校验。
package pin

import (
	"errors"

	"github.com/awnumar/memguard"
)

const (
	// MaxLen PIN 最多 8 位
	MaxLen = 8
	// MinLen 少于 4 位不允许提交
	MinLen = 4
)

var (
	ErrFull         = errors.New("pin buffer full")
	ErrInvalidDigit = errors.New("digit out of range")
)

// Buffer 定长数字缓冲
// 只能由持有界面的 owner 协程访问，不做并发保护。
type Buffer struct {
	digits [MaxLen]byte
	n      int
}

// AppendDigit 追加一位数字
// 缓冲满时返回 ErrFull，调用方通常直接忽略 (上限而不是校验失败)。
func (b *Buffer) AppendDigit(d int) error {
	if d < 0 || d > 9 {
		return ErrInvalidDigit
	}
	// 新一轮输入的第一位：先清空残留
	if b.n == 0 {
		b.Reset()
	}
	if b.n == MaxLen {
		return ErrFull
	}
	b.digits[b.n] = byte('0' + d)
	b.n++
	return nil
}

// Backspace 删除最后一位，空缓冲时无操作
func (b *Buffer) Backspace() bool {
	if b.n == 0 {
		return false
	}
	b.n--
	b.digits[b.n] = 0
	return true
}

func (b *Buffer) Len() int {
	return b.n
}

// Submittable 是否达到最小提交长度
func (b *Buffer) Submittable() bool {
	return b.n >= MinLen
}

// Reset 清空并擦除内容
func (b *Buffer) Reset() {
	memguard.WipeBytes(b.digits[:])
	b.n = 0
}

// String 返回已输入的 PIN
func (b *Buffer) String() string {
	return string(b.digits[:b.n])
}

// Masked 返回用于显示的掩码
func (b *Buffer) Masked() string {
	masked := make([]byte, b.n)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked)
}
