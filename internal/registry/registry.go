// Package registry 维护进程本地的活跃连接缓存。
//
// 注册表严格是权威状态之上的缓存: 条目的创建和删除本身没有任何持久化
// 副作用，删除后必须由调用方通过同步引擎落一笔 disconnected 写入。
// 多进程部署中它永远不是跨进程的事实来源。
package registry

import (
	"sync"
	"time"
)

// Entry 是一个活跃连接的缓存记录: 句柄 → (参与者, 房间, 最后活跃时间)。
type Entry struct {
	Handle        string
	ParticipantID uint
	RoomID        uint
	LastActivity  time.Time
}

// Registry 是句柄索引的连接缓存。所有操作都是纯内存的，不会挂起。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	// now 可注入，便于测试空闲清扫
	now func() time.Time
}

// New 创建一个空的连接注册表。
func New() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Register 登记一个新连接。同一句柄重复登记时覆盖旧条目。
func (r *Registry) Register(handle string, participantID, roomID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[handle] = &Entry{
		Handle:        handle,
		ParticipantID: participantID,
		RoomID:        roomID,
		LastActivity:  r.now(),
	}
}

// Touch 刷新句柄的最后活跃时间。句柄不存在时返回 false (视为已对账的 no-op)。
func (r *Registry) Touch(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[handle]
	if !ok {
		return false
	}
	entry.LastActivity = r.now()
	return true
}

// Lookup 返回句柄对应的条目副本。
func (r *Registry) Lookup(handle string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[handle]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// ListByParticipant 返回某个参与者的全部活跃连接 (同一参与者可能多端在线)。
// 显式离开房间时据此一并摘除该参与者的所有连接。
func (r *Registry) ListByParticipant(participantID uint) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Entry
	for _, entry := range r.entries {
		if entry.ParticipantID == participantID {
			result = append(result, *entry)
		}
	}
	return result
}

// ListByRoom 返回订阅某房间的全部连接，广播层据此扇出快照。
func (r *Registry) ListByRoom(roomID uint) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []Entry
	for _, entry := range r.entries {
		if entry.RoomID == roomID {
			result = append(result, *entry)
		}
	}
	return result
}

// Remove 删除句柄对应的条目，返回被删除的条目。
// 注意: 删除没有持久化副作用，调用方必须随后通过同步引擎落盘断连。
func (r *Registry) Remove(handle string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[handle]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, handle)
	return *entry, true
}

// SweepIdle 删除最后活跃时间早于 maxIdle 的全部条目并返回它们。
// 调用方 (Reaper) 必须对每个返回条目调用同步引擎持久化 disconnected ——
// 仅仅从注册表移除不产生任何持久化效果。
func (r *Registry) SweepIdle(maxIdle time.Duration) []Entry {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Entry
	for handle, entry := range r.entries {
		if entry.LastActivity.Before(cutoff) {
			removed = append(removed, *entry)
			delete(r.entries, handle)
		}
	}
	return removed
}

// Len 返回当前条目数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
