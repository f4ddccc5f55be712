package domain_test // 测试包

import (
	"testing"

	"gamebuddies-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 测试房间状态机转换表 ---

func TestCanTransition_LegalPaths(t *testing.T) {
	// Arrange: 列出转换表中全部合法路径
	legal := []struct {
		from domain.RoomStatus
		to   domain.RoomStatus
	}{
		{domain.StatusLobby, domain.StatusInGame},
		{domain.StatusLobby, domain.StatusAbandoned},
		{domain.StatusLobby, domain.StatusFinished},
		{domain.StatusInGame, domain.StatusLobby},
		{domain.StatusInGame, domain.StatusReturning},
		{domain.StatusInGame, domain.StatusAbandoned},
		{domain.StatusInGame, domain.StatusFinished},
		{domain.StatusReturning, domain.StatusLobby},
		{domain.StatusReturning, domain.StatusAbandoned},
	}

	// Act & Assert
	for _, tc := range legal {
		assert.True(t, domain.CanTransition(tc.from, tc.to), "%s -> %s 应为合法转换", tc.from, tc.to)
	}
}

func TestCanTransition_IllegalPaths(t *testing.T) {
	// Arrange: 挑选必须被拒绝的路径
	illegal := []struct {
		from domain.RoomStatus
		to   domain.RoomStatus
	}{
		{domain.StatusLobby, domain.StatusReturning},    // 没进过游戏不能进入返回流程
		{domain.StatusReturning, domain.StatusInGame},   // 返回途中不能重新开局
		{domain.StatusReturning, domain.StatusFinished}, // 返回途中只能回大厅或被废弃
		{domain.StatusAbandoned, domain.StatusLobby},    // 终态没有出边
		{domain.StatusFinished, domain.StatusLobby},
		{domain.StatusFinished, domain.StatusInGame},
		{domain.StatusAbandoned, domain.StatusFinished},
	}

	// Act & Assert
	for _, tc := range illegal {
		assert.False(t, domain.CanTransition(tc.from, tc.to), "%s -> %s 应为非法转换", tc.from, tc.to)
	}
}

func TestCanTransition_SelfLoopIsIllegal(t *testing.T) {
	// 转换表不包含自环，幂等收敛由上层处理
	for _, s := range []domain.RoomStatus{
		domain.StatusLobby, domain.StatusInGame, domain.StatusReturning,
		domain.StatusAbandoned, domain.StatusFinished,
	} {
		assert.False(t, domain.CanTransition(s, s), "%s -> %s 不应出现在转换表中", s, s)
	}
}

func TestRoomStatus_IsTerminal(t *testing.T) {
	assert.True(t, domain.StatusAbandoned.IsTerminal())
	assert.True(t, domain.StatusFinished.IsTerminal())
	assert.False(t, domain.StatusLobby.IsTerminal())
	assert.False(t, domain.StatusInGame.IsTerminal())
	assert.False(t, domain.StatusReturning.IsTerminal())
}

func TestParseRoomStatus(t *testing.T) {
	// Act: 合法值
	status, err := domain.ParseRoomStatus("in_game")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInGame, status)

	// Act: 非法值
	_, err = domain.ParseRoomStatus("paused")

	// Assert
	require.Error(t, err, "封闭枚举之外的值必须报错")
}
