package domain_test // 测试包

import (
	"testing"

	"gamebuddies-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 测试逻辑状态到字段三元组的全映射 ---

func TestLogicalStatus_Triple_Totality(t *testing.T) {
	// Arrange: 全部四个逻辑状态及其期望的字段三元组
	cases := []struct {
		status domain.LogicalStatus
		triple domain.StatusTriple
	}{
		{domain.LogicalConnected, domain.StatusTriple{Connected: true, Location: domain.LocationLobby, InGame: false}},
		{domain.LogicalDisconnected, domain.StatusTriple{Connected: false, Location: domain.LocationDisconnected, InGame: false}},
		{domain.LogicalInGame, domain.StatusTriple{Connected: true, Location: domain.LocationGame, InGame: true}},
		{domain.LogicalReturnedToLobby, domain.StatusTriple{Connected: true, Location: domain.LocationLobby, InGame: false}},
	}

	// Act & Assert: 映射必须是全函数，且与调用方身份无关
	for _, tc := range cases {
		assert.True(t, tc.status.Valid(), "%s 应属于封闭集合", tc.status)
		assert.Equal(t, tc.triple, tc.status.Triple(), "%s 的三元组映射不符", tc.status)
	}
}

func TestParseLogicalStatus_RejectsUnknown(t *testing.T) {
	_, err := domain.ParseLogicalStatus("away")
	require.Error(t, err, "未知逻辑状态必须被拒绝")

	status, err := domain.ParseLogicalStatus("returned_to_lobby")
	require.NoError(t, err)
	assert.Equal(t, domain.LogicalReturnedToLobby, status)
}

// --- 测试 ApplyLogicalStatus 对模型不变量的维护 ---

func TestMembership_ApplyLogicalStatus_ClearsHandleOnDisconnect(t *testing.T) {
	// Arrange: 持有活跃句柄的连接成员
	handle := "conn-abc"
	m := &domain.Membership{
		Connected: true,
		Location:  domain.LocationLobby,
		Handle:    &handle,
	}

	// Act
	m.ApplyLogicalStatus(domain.LogicalDisconnected)

	// Assert: Connected == false 蕴含 Location == disconnected 且句柄清空
	assert.False(t, m.Connected)
	assert.Equal(t, domain.LocationDisconnected, m.Location)
	assert.False(t, m.InGame)
	assert.Nil(t, m.Handle, "断连后句柄必须清空")
}

func TestMembership_ApplyLogicalStatus_ClearsHandleInGame(t *testing.T) {
	// Arrange
	handle := "conn-def"
	m := &domain.Membership{
		Connected: true,
		Location:  domain.LocationLobby,
		Handle:    &handle,
	}

	// Act: 进入外部游戏进程
	m.ApplyLogicalStatus(domain.LogicalInGame)

	// Assert: location == game 蕴含 Connected 且 Handle == nil
	assert.True(t, m.Connected)
	assert.Equal(t, domain.LocationGame, m.Location)
	assert.True(t, m.InGame)
	assert.Nil(t, m.Handle, "进入游戏后传输会话不再活跃，句柄必须清空")
}

func TestMembership_ApplyLogicalStatus_KeepsHandleInLobby(t *testing.T) {
	// Arrange
	handle := "conn-ghi"
	m := &domain.Membership{
		Connected: false,
		Location:  domain.LocationDisconnected,
		Handle:    &handle,
	}

	// Act: 回到大厅的连接状态
	m.ApplyLogicalStatus(domain.LogicalReturnedToLobby)

	// Assert
	assert.True(t, m.Connected)
	assert.Equal(t, domain.LocationLobby, m.Location)
	assert.NotNil(t, m.Handle, "大厅内的连接状态不清空句柄")
}

func TestMembership_StatusEquals(t *testing.T) {
	// Arrange: 字段与 connected 三元组一致的成员
	m := &domain.Membership{
		Connected: true,
		Location:  domain.LocationLobby,
		InGame:    false,
	}

	// Assert: connected 与 returned_to_lobby 映射到同一三元组
	assert.True(t, m.StatusEquals(domain.LogicalConnected))
	assert.True(t, m.StatusEquals(domain.LogicalReturnedToLobby))
	assert.False(t, m.StatusEquals(domain.LogicalInGame))
	assert.False(t, m.StatusEquals(domain.LogicalDisconnected))
}
