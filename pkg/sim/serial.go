//go:build linux

package sim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

func setSerialParam(fd int, baudRate int) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	speed, ok := baudRates[baudRate]
	if !ok {
		speed = unix.B115200
	}

	// 原始模式 (8N1, 无回显, 无信号)
	termios.Cflag &^= unix.PARENB | unix.CSTOPB | unix.CSIZE | unix.CBAUD
	termios.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed

	// 无流控制
	termios.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL

	// 非规范模式
	termios.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ISIG

	termios.Oflag &^= unix.OPOST

	termios.Ispeed = speed
	termios.Ospeed = speed

	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	return unix.IoctlSetTermios(fd, unix.TCSETS, termios)
}

// OpenSerial 以原始模式打开 Modem 的 AT 串口
// fd 保持非阻塞并交给运行时 poller 管理，读超时依赖 SetReadDeadline。
func OpenSerial(path string, baudRate int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0o666)
	if err != nil {
		return nil, err
	}

	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = setSerialParam(int(fd), baudRate)
	}); err != nil {
		f.Close()
		return nil, err
	}
	if serr != nil {
		f.Close()
		return nil, fmt.Errorf("configure %s: %w", path, serr)
	}

	return f, nil
}
