package agent

import (
	"fmt"
	"sync"
)

// keyedMutex 为每个智能体维护一把互斥锁，把"读门控-兑换-提交"
// 序列在进程内串行化，防止两个 keeper 同窗口双重执行。
// 锁按需创建且不回收，数量以智能体总数为上界。
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(creator string, id uint64) func() {
	key := fmt.Sprintf("%s/%d", creator, id)
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m.Unlock
}
