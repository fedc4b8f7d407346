package sim

import (
	"context"
	"errors"
)

// State SIM 卡锁状态 (对应 AT+CPIN? 的返回)
type State int

const (
	StateUnknown State = iota
	StateAbsent
	StatePinRequired
	StatePukRequired
	StateNetworkLocked
	StateReady
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StatePinRequired:
		return "PIN_REQUIRED"
	case StatePukRequired:
		return "PUK_REQUIRED"
	case StateNetworkLocked:
		return "NETWORK_LOCKED"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// StateReader 查询当前 SIM 卡状态
type StateReader interface {
	SimState(ctx context.Context) (State, error)
}

// PinSupplier 向 SIM 卡提交 PIN 码
// 返回 (true, nil) 表示解锁成功；(false, nil) 表示 PIN 被拒绝；
// error 表示与 SIM/Modem 通信失败。该调用可能阻塞。
type PinSupplier interface {
	SupplyPin(ctx context.Context, pin string) (bool, error)
}

// Provider 组合了状态查询和 PIN 提交能力
type Provider interface {
	StateReader
	PinSupplier

	// 获取 IMSI (International Mobile Subscriber Identity)
	GetIMSI() (string, error)

	// 关闭资源 (如串口)
	Close() error
}

var (
	ErrSIMNotPresent = errors.New("SIM card not present")
	ErrCommunication = errors.New("SIM communication failure")
	ErrATTimeout     = errors.New("AT command timeout")
)
