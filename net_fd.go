//go:build linux

package zstream

import (
	"strings"
	"sync/atomic"

	"github.com/zhihanii/zlog"
	"golang.org/x/sys/unix"
)

type netFD struct {
	// file descriptor
	fd int
	// closed marks whether fd has expired
	closed uint32
	// tcp tcp4 tcp6, unix, or empty for a raw descriptor
	network string
}

// Close will be executed only once.
func (c *netFD) Close() (err error) {
	if atomic.AddUint32(&c.closed, 1) != 1 {
		return nil
	}
	if c.fd > 0 {
		err = unix.Close(c.fd)
		if err != nil {
			zlog.Errorf("netFD[%d] close error: %s", c.fd, err.Error())
		}
	}
	return err
}

func (c *netFD) isTCP() bool {
	return strings.HasPrefix(c.network, "tcp")
}

// SetKeepAlive only applies to tcp descriptors.
func (c *netFD) SetKeepAlive(second int) error {
	if !c.isTCP() || second <= 0 {
		return nil
	}
	return setKeepAlive(c.fd, second)
}
