package buffer

import (
	"sync/atomic"

	"github.com/go-logr/logr"
)

// Logger is this package's default, seeded into a Factory when the
// caller passes the zero logr.Logger, mirroring the teacher's
// package-level buffer.Logger global.
var Logger logr.Logger = logr.Discard()

// atomicBool is a lock-free bool, used for flags read far more often
// than written (Sink's closed flag) where taking a mutex just to peek
// would be wasteful.
type atomicBool int32

func (a *atomicBool) set(value bool) {
	var i int32
	if value {
		i = 1
	}
	atomic.StoreInt32((*int32)(a), i)
}

func (a *atomicBool) get() bool {
	return atomic.LoadInt32((*int32)(a)) != 0
}
