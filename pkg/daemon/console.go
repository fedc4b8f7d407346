package daemon

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/iniwex5/keyguard-go/pkg/keyguard"
)

var ErrUnknownCommand = errors.New("unknown command")

// Console 把一行文本命令翻译为锁屏事件
type Console struct {
	m        *keyguard.Manager
	status   func() string
	commands map[string]command
}

type command struct {
	usage string
	run   func(args []string) (string, error)
}

func NewConsole(m *keyguard.Manager, status func() string) *Console {
	c := &Console{m: m, status: status}
	if c.status == nil {
		c.status = func() string { return FormatSnapshot(m.Snapshot()) }
	}
	c.commands = map[string]command{
		"show":      {"显示锁屏", c.noArgs(m.Show)},
		"hide":      {"隐藏锁屏", c.noArgs(func() error { m.Hide(); return nil })},
		"reset":     {"重置当前界面", c.noArgs(func() error { m.Reset(); return nil })},
		"on":        {"亮屏", c.noArgs(func() error { m.OnScreenTurnedOn(); return nil })},
		"off":       {"灭屏", c.noArgs(func() error { m.OnScreenTurnedOff(); return nil })},
		"verify":    {"要求立即验证", c.noArgs(m.VerifyUnlock)},
		"wake":      {"wake [keycode] 按键唤醒", c.wake},
		"digits":    {"digits <0-9...> 硬件键盘输入", c.digits},
		"tap":       {"tap <0-9...> 触摸拨号盘输入", c.tap},
		"del":       {"删除一位", c.key(keyguard.KeyDel)},
		"enter":     {"硬件键盘确认", c.key(keyguard.KeyEnter)},
		"back":      {"返回键", c.key(keyguard.KeyBack)},
		"menu":      {"菜单键", c.key(keyguard.KeyMenu)},
		"ok":        {"触摸确认按钮", c.click(keyguard.ButtonOK)},
		"backspace": {"触摸删除按钮", c.click(keyguard.ButtonBackspace)},
		"cancel":    {"触摸取消按钮", c.click(keyguard.ButtonCancel)},
		"emergency": {"紧急呼叫按钮", c.click(keyguard.ButtonEmergency)},
		"pattern":   {"pattern 1-2-3 绘制图案", c.pattern},
		"keyboard":  {"keyboard open|closed 键盘开合", c.keyboard},
		"status":    {"当前状态", func([]string) (string, error) { return c.status(), nil }},
		"help":      {"命令列表", func([]string) (string, error) { return c.help(), nil }},
	}
	return c
}

// Exec 执行一行命令；空行返回空字符串
func (c *Console) Exec(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.ToLower(fields[0])
	// 纯数字行等同于 digits
	if isDigitString(name) {
		return c.digits(fields)
	}
	cmd, ok := c.commands[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return cmd.run(fields[1:])
}

func (c *Console) help() string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-10s %s", name, c.commands[name].usage)
	}
	return b.String()
}

func (c *Console) noArgs(fn func() error) func([]string) (string, error) {
	return func(args []string) (string, error) {
		if len(args) > 0 {
			return "", errors.New("unexpected arguments")
		}
		if err := fn(); err != nil {
			return "", err
		}
		return "ok", nil
	}
}

func (c *Console) key(code keyguard.KeyCode) func([]string) (string, error) {
	return func([]string) (string, error) {
		if !c.m.DispatchKey(code) {
			return "ignored", nil
		}
		return "ok", nil
	}
}

func (c *Console) click(b keyguard.Button) func([]string) (string, error) {
	return func([]string) (string, error) {
		if err := c.m.DispatchClick(b); err != nil {
			return "", err
		}
		return "ok", nil
	}
}

func (c *Console) wake(args []string) (string, error) {
	code := keyguard.KeyPower
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return "", fmt.Errorf("invalid keycode %q", args[0])
		}
		code = keyguard.KeyCode(n)
	}
	c.m.WakeWhenReadyTq(code)
	return "ok", nil
}

func (c *Console) digits(args []string) (string, error) {
	s := strings.Join(args, "")
	if !isDigitString(s) {
		return "", fmt.Errorf("invalid digits %q", s)
	}
	for i := 0; i < len(s); i++ {
		c.m.DispatchKey(keyguard.KeyForDigit(int(s[i] - '0')))
	}
	return "ok", nil
}

func (c *Console) tap(args []string) (string, error) {
	s := strings.Join(args, "")
	if !isDigitString(s) {
		return "", fmt.Errorf("invalid digits %q", s)
	}
	for i := 0; i < len(s); i++ {
		if err := c.m.DispatchClick(keyguard.DigitButton(int(s[i] - '0'))); err != nil {
			return "", err
		}
	}
	return "ok", nil
}

func (c *Console) pattern(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: pattern 1-2-3")
	}
	parts := strings.Split(args[0], "-")
	cells := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 8 {
			return "", fmt.Errorf("invalid pattern cell %q", p)
		}
		cells = append(cells, n)
	}
	if err := c.m.SubmitPattern(cells); err != nil {
		return "", err
	}
	return "ok", nil
}

func (c *Console) keyboard(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("usage: keyboard open|closed")
	}
	switch args[0] {
	case "open":
		c.m.OnKeyboardChange(true)
	case "closed", "close":
		c.m.OnKeyboardChange(false)
	default:
		return "", fmt.Errorf("invalid keyboard state %q", args[0])
	}
	return "ok", nil
}

func isDigitString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
