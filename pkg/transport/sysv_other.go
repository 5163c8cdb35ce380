//go:build !(linux && (amd64 || arm64))

package transport

import (
	"github.com/billm/baaaht/messenger/pkg/envelope"
	"github.com/billm/baaaht/messenger/pkg/types"
)

// SysV is unavailable on this platform
type SysV struct{}

// NewSysV always fails on this platform
func NewSysV() (*SysV, error) {
	return nil, types.NewError(types.ErrCodeUnavailable, "sysv transport requires linux on amd64 or arm64")
}

func (s *SysV) ID() types.ID { return "" }

func (s *SysV) TrySend(env envelope.Envelope) error {
	return types.NewError(types.ErrCodeUnavailable, "sysv transport unsupported")
}

func (s *SysV) TryReceive() (envelope.Envelope, error) {
	return envelope.Envelope{}, types.NewError(types.ErrCodeUnavailable, "sysv transport unsupported")
}

func (s *SysV) Close() error { return nil }
