package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newBareHub 构造一个只有订阅簿的 Hub，不接服务层。
// 这里只测订阅簿和房间绑定的并发安全，不走业务路径。
func newBareHub() *Hub {
	return &Hub{
		messageChan: make(chan hubMessage, 16),
		rooms:       make(map[uint]map[*Client]bool),
		lastVersion: make(map[uint]uint),
	}
}

func TestHub_RoomBindingSafeUnderConcurrentReads(t *testing.T) {
	// Arrange
	h := newBareHub()
	client := &Client{participantID: 7, send: make(chan []byte, 1)}

	// Act: 订阅切换与消息处理方的房间读取并发执行
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		room := uint(i%3 + 1)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				h.subscribe(client, room)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = client.room()
			}
		}()
	}
	wg.Wait()

	// Assert: 客户端恰好出现在它最终绑定的那个房间的订阅集合里
	final := client.room()
	assert.Contains(t, []uint{1, 2, 3}, final)
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	occurrences := 0
	for id, set := range h.rooms {
		if set[client] {
			occurrences++
			assert.Equal(t, final, id, "订阅集合必须与房间绑定一致")
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestHub_ActiveRoomIDsReflectsSubscriptions(t *testing.T) {
	// Arrange
	h := newBareHub()
	a := &Client{participantID: 1, send: make(chan []byte, 1)}
	b := &Client{participantID: 2, send: make(chan []byte, 1)}

	// Act
	h.subscribe(a, 10)
	h.subscribe(b, 20)

	// Assert
	assert.ElementsMatch(t, []uint{10, 20}, h.ActiveRoomIDs())

	// 换房后旧房间的空订阅集合被回收
	h.subscribe(b, 10)
	assert.ElementsMatch(t, []uint{10}, h.ActiveRoomIDs())
}
