//go:build linux && (amd64 || arm64)

package transport

import (
	"fmt"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/types"
)

const (
	ipcPrivate = 0
	// sysvMessageType is the mtype every envelope is sent and received with
	sysvMessageType = 1
)

// sysvMessage mirrors struct msgbuf: a long type followed by the body
type sysvMessage struct {
	mtype int64
	mtext [envelope.EncodedSize]byte
}

// SysV is a System V message queue private to this process tree
type SysV struct {
	qid    int
	closed atomic.Bool
}

// NewSysV creates a new private kernel message queue
func NewSysV() (*SysV, error) {
	r1, _, errno := unix.Syscall(unix.SYS_MSGGET,
		uintptr(ipcPrivate), uintptr(unix.IPC_CREAT|unix.IPC_EXCL|0666), 0)
	if errno != 0 {
		return nil, classifyGetError(errno)
	}
	return &SysV{qid: int(r1)}, nil
}

func classifyGetError(errno syscall.Errno) error {
	switch errno {
	case unix.ENOMEM, unix.ENOSPC:
		return types.WrapError(types.ErrCodeResourceExhausted, "msgget: no queue available", errno)
	case unix.EACCES:
		return types.WrapError(types.ErrCodeInternal, "msgget: permission denied", errno)
	case unix.ENOSYS:
		return types.WrapError(types.ErrCodeUnavailable, "msgget: System V IPC not supported by kernel", errno)
	default:
		return types.WrapError(types.ErrCodeInternal, "msgget failed", errno)
	}
}

// ID returns the transport identifier
func (s *SysV) ID() types.ID {
	return types.NewID(fmt.Sprintf("sysv-%d", s.qid))
}

// QueueID returns the kernel queue identifier
func (s *SysV) QueueID() int {
	return s.qid
}

// TrySend enqueues env with IPC_NOWAIT
func (s *SysV) TrySend(env envelope.Envelope) error {
	msg := sysvMessage{mtype: sysvMessageType}
	if err := env.MarshalTo(msg.mtext[:]); err != nil {
		return err
	}

	_, _, errno := unix.Syscall6(unix.SYS_MSGSND,
		uintptr(s.qid), uintptr(unsafe.Pointer(&msg)), uintptr(len(msg.mtext)), uintptr(unix.IPC_NOWAIT), 0, 0)
	switch errno {
	case 0:
		return nil
	case unix.EAGAIN, unix.EINTR:
		return ErrFull
	default:
		return types.WrapError(types.ErrCodeInternal, "msgsnd failed on "+s.ID().String(), errno)
	}
}

// TryReceive dequeues the oldest envelope with IPC_NOWAIT
func (s *SysV) TryReceive() (envelope.Envelope, error) {
	var msg sysvMessage
	r1, _, errno := unix.Syscall6(unix.SYS_MSGRCV,
		uintptr(s.qid), uintptr(unsafe.Pointer(&msg)), uintptr(len(msg.mtext)), sysvMessageType, uintptr(unix.IPC_NOWAIT), 0)
	switch errno {
	case 0:
	case unix.ENOMSG, unix.EAGAIN, unix.EINTR:
		return envelope.Envelope{}, ErrEmpty
	default:
		return envelope.Envelope{}, types.WrapError(types.ErrCodeInternal, "msgrcv failed on "+s.ID().String(), errno)
	}

	var env envelope.Envelope
	if err := env.UnmarshalBinary(msg.mtext[:r1]); err != nil {
		return envelope.Envelope{}, err
	}
	return env, nil
}

// Close removes the kernel queue
func (s *SysV) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return types.NewError(types.ErrCodeFailedPrecondition, "sysv transport already closed: "+s.ID().String())
	}
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(s.qid), uintptr(unix.IPC_RMID), 0)
	if errno != 0 {
		return types.WrapError(types.ErrCodeInternal, "msgctl(IPC_RMID) failed on "+s.ID().String(), errno)
	}
	return nil
}
