//go:build windows

package procfind

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// DetachedSysProcAttr returns the attributes that launch a child
// detached and in a new process group, decoupling its lifetime from
// ours.
func DetachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
}
