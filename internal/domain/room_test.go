package domain_test // 测试包

import (
	"testing"
	"time"

	"gamebuddies-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 测试房间元数据中的宽限窗口 ---

func TestRoom_GraceWindow_SetAndExpire(t *testing.T) {
	// Arrange
	room := &domain.Room{}
	now := time.Now()

	// Act: 设置一个 30 秒的宽限窗口
	err := room.SetGraceWindow(now, 30*time.Second)

	// Assert: 窗口内激活，窗口外失效
	require.NoError(t, err)
	assert.True(t, room.GraceActive(now), "刚设置的窗口应处于激活状态")
	assert.True(t, room.GraceActive(now.Add(29*time.Second)))
	assert.False(t, room.GraceActive(now.Add(31*time.Second)), "窗口到期后不应再激活")
}

func TestRoom_GraceWindow_Clear(t *testing.T) {
	// Arrange
	room := &domain.Room{}
	now := time.Now()
	require.NoError(t, room.SetGraceWindow(now, time.Minute))
	require.True(t, room.GraceActive(now))

	// Act
	err := room.ClearGraceWindow()

	// Assert
	require.NoError(t, err)
	assert.False(t, room.GraceActive(now), "清除后窗口不应激活")

	meta, err := room.ParseMetadata()
	require.NoError(t, err)
	assert.Nil(t, meta.GraceUntil)
}

func TestRoom_ParseMetadata_EmptyIsZeroValue(t *testing.T) {
	// Arrange: 新建房间的 Metadata 为空字符串
	room := &domain.Room{}

	// Act
	meta, err := room.ParseMetadata()

	// Assert: 空元数据是零值，不是错误
	require.NoError(t, err)
	assert.Nil(t, meta.GraceUntil)
	assert.False(t, room.GraceActive(time.Now()))
}

func TestRoom_GraceActive_MalformedMetadataIsInactive(t *testing.T) {
	// Arrange: 损坏的元数据不能阻塞写路径
	room := &domain.Room{Metadata: "{not-json"}

	// Act & Assert: 解析失败按窗口未激活处理
	assert.False(t, room.GraceActive(time.Now()))
}
