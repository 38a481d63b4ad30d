//go:build !windows

package procfind

import (
	"syscall"
)

// DetachedSysProcAttr returns the attributes that launch a child in
// its own session, decoupling its lifetime from ours.
func DetachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}
