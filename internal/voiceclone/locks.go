package voiceclone

import (
	"sync"

	"ManagerAPI/pkg/util"
)

const lockStripes = 256

// keyLock 按记录 id 分段加锁，同一 id 总是落到同一把锁上
type keyLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyLock) lock(id string) func() {
	m := &l.stripes[util.KeySlot(id)%lockStripes]
	m.Lock()
	return m.Unlock
}
