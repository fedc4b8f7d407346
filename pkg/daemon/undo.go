package daemon

import "go.uber.org/multierr"

// undoStack 按相反顺序释放已创建的资源
type undoStack struct {
	undos []func() error
}

func (u *undoStack) push(fn func() error) {
	u.undos = append(u.undos, fn)
}

// commit 放弃所有撤销动作 (资源所有权已转移)
func (u *undoStack) commit() {
	u.undos = nil
}

func (u *undoStack) rollback() error {
	var err error
	for i := len(u.undos) - 1; i >= 0; i-- {
		err = multierr.Append(err, u.undos[i]())
	}
	u.undos = nil
	return err
}
