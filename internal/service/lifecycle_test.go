package service_test // 测试包

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
	"gamebuddies-server/internal/repository/mocks"
	"gamebuddies-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLifecycleFixture() (*mocks.RoomRepository, *mocks.MembershipRepository, *mocks.RoomEventRepository, *service.LifecycleService) {
	rooms := new(mocks.RoomRepository)
	memberships := new(mocks.MembershipRepository)
	events := new(mocks.RoomEventRepository)
	lifecycle := service.NewLifecycleService(rooms, memberships, events, 30*time.Second)
	return rooms, memberships, events, lifecycle
}

// --- 测试 AfterMembershipWrite 的房间级推导 ---

func TestLifecycle_EmptyRoomTransitionsToAbandoned(t *testing.T) {
	// Arrange: 最后一个成员断连后房间内无任何连接
	rooms, memberships, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Code: "ABC123", Status: domain.StatusLobby, Version: 2}

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	memberships.On("ListByRoom", ctx, uint(1)).
		Return([]domain.Membership{{ParticipantID: 7, Connected: false}}, nil)
	rooms.On("UpdateVersioned", ctx, room, uint(2)).Return(nil).Once()
	events.On("Append", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.RoomID == 1 &&
			e.OldStatus == domain.StatusLobby &&
			e.NewStatus == domain.StatusAbandoned &&
			e.Cause == domain.CauseEmptyRoom
	})).Return(nil).Once()

	// Act
	err := lifecycle.AfterMembershipWrite(ctx, 1, domain.LogicalDisconnected)

	// Assert: 唯一的空房间终态是 abandoned
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, room.Status)
	rooms.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestLifecycle_TerminalRoomIsLeftAlone(t *testing.T) {
	// Arrange: 已是终态的房间不再产生任何转换
	rooms, memberships, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Status: domain.StatusAbandoned, Version: 5}

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	memberships.On("ListByRoom", ctx, uint(1)).Return([]domain.Membership{}, nil)

	// Act: 对已收敛的房间重复推导
	err := lifecycle.AfterMembershipWrite(ctx, 1, domain.LogicalDisconnected)

	// Assert: 幂等，无写入
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, room.Status)
	rooms.AssertNotCalled(t, "UpdateVersioned", mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestLifecycle_AllReturnedBringsRoomBackToLobby(t *testing.T) {
	// Arrange: 最后一个 in_game 成员上报 returned_to_lobby
	rooms, memberships, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Status: domain.StatusInGame, Version: 3}

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	memberships.On("ListByRoom", ctx, uint(1)).Return([]domain.Membership{
		{ParticipantID: 7, Connected: true, InGame: false},
		{ParticipantID: 8, Connected: true, InGame: false},
	}, nil)
	rooms.On("UpdateVersioned", ctx, room, uint(3)).Return(nil).Once()
	events.On("Append", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.NewStatus == domain.StatusLobby && e.Cause == domain.CauseAllReturned
	})).Return(nil).Once()

	// Act
	err := lifecycle.AfterMembershipWrite(ctx, 1, domain.LogicalReturnedToLobby)

	// Assert: 回到大厅并设置宽限窗口
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLobby, room.Status)
	assert.True(t, room.GraceActive(time.Now()), "大厅返回路径必须激活宽限窗口")
	rooms.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestLifecycle_ConnectedWriteInLobbyIsNoop(t *testing.T) {
	// Arrange: 普通心跳写入之后房间无需任何转换
	rooms, memberships, _, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Status: domain.StatusLobby, Version: 1}

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	memberships.On("ListByRoom", ctx, uint(1)).
		Return([]domain.Membership{{Connected: true}}, nil)

	// Act
	err := lifecycle.AfterMembershipWrite(ctx, 1, domain.LogicalConnected)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLobby, room.Status)
	rooms.AssertNotCalled(t, "UpdateVersioned", mock.Anything, mock.Anything, mock.Anything)
}

// --- 测试 StartGame ---

func TestLifecycle_StartGame_RequiresHost(t *testing.T) {
	// Arrange
	rooms, _, _, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusLobby, HostID: &hostID, Capacity: 4}
	rooms.On("FindByID", ctx, uint(1)).Return(room, nil).Once()

	// Act: 非房主尝试开始游戏
	err := lifecycle.StartGame(ctx, 1, 2)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrNotHost))
}

func TestLifecycle_StartGame_RejectsEmptyLobby(t *testing.T) {
	// Arrange: 房主在场但没有任何连接的玩家
	rooms, memberships, _, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusLobby, HostID: &hostID, Capacity: 4}
	rooms.On("FindByID", ctx, uint(1)).Return(room, nil).Once()
	memberships.On("ListByRoom", ctx, uint(1)).Return([]domain.Membership{
		{ParticipantID: 1, Role: domain.RoleHost, Connected: false},
		{ParticipantID: 2, Role: domain.RoleSpectator, Connected: true},
	}, nil).Once()

	// Act
	err := lifecycle.StartGame(ctx, 1, hostID)

	// Assert: 旁观者不计入玩家数
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
}

func TestLifecycle_StartGame_RejectsOverCapacity(t *testing.T) {
	// Arrange: 连接玩家数超过容量
	rooms, memberships, _, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusLobby, HostID: &hostID, Capacity: 1}
	rooms.On("FindByID", ctx, uint(1)).Return(room, nil).Once()
	memberships.On("ListByRoom", ctx, uint(1)).Return([]domain.Membership{
		{ParticipantID: 1, Role: domain.RoleHost, Connected: true},
		{ParticipantID: 2, Role: domain.RolePlayer, Connected: true},
	}, nil).Once()

	// Act
	err := lifecycle.StartGame(ctx, 1, hostID)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrRoomFull))
}

func TestLifecycle_StartGame_Success(t *testing.T) {
	// Arrange: 大厅内的合法开局，房间还带着上一局设置的宽限窗口
	rooms, memberships, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusLobby, HostID: &hostID, Capacity: 4, Version: 2}
	require.NoError(t, room.SetGraceWindow(time.Now(), time.Minute))

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	memberships.On("ListByRoom", ctx, uint(1)).Return([]domain.Membership{
		{ParticipantID: 1, Role: domain.RoleHost, Connected: true},
		{ParticipantID: 2, Role: domain.RolePlayer, Connected: true},
	}, nil)
	rooms.On("UpdateVersioned", ctx, room, uint(2)).Return(nil).Once()
	events.On("Append", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.OldStatus == domain.StatusLobby &&
			e.NewStatus == domain.StatusInGame &&
			e.Cause == domain.CauseHostStart
	})).Return(nil).Once()

	// Act
	err := lifecycle.StartGame(ctx, 1, hostID)

	// Assert: 进入游戏时宽限窗口被清除
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInGame, room.Status)
	assert.False(t, room.GraceActive(time.Now()), "开局必须清除残留的宽限窗口")
	rooms.AssertExpectations(t)
	events.AssertExpectations(t)
}

// --- 测试 ReturnAll 与 FinishRoom ---

func TestLifecycle_ReturnAll_EntersReturningWithGrace(t *testing.T) {
	// Arrange
	rooms, _, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusInGame, HostID: &hostID, Capacity: 4, Version: 7}

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	rooms.On("UpdateVersioned", ctx, room, uint(7)).Return(nil).Once()
	events.On("Append", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.NewStatus == domain.StatusReturning && e.Cause == domain.CauseHostReturnAll
	})).Return(nil).Once()

	// Act
	err := lifecycle.ReturnAll(ctx, 1, hostID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturning, room.Status)
	assert.True(t, room.GraceActive(time.Now()))
	events.AssertExpectations(t)
}

func TestLifecycle_FinishRoom_IllegalFromReturning(t *testing.T) {
	// Arrange: returning 状态只能回大厅或被废弃
	rooms, _, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusReturning, HostID: &hostID, Capacity: 4}
	rooms.On("FindByID", ctx, uint(1)).Return(room, nil)

	// Act
	err := lifecycle.FinishRoom(ctx, 1, hostID)

	// Assert: 转换表拒绝，状态保持不变
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrIllegalTransition))
	assert.Equal(t, domain.StatusReturning, room.Status)
	rooms.AssertNotCalled(t, "UpdateVersioned", mock.Anything, mock.Anything, mock.Anything)
	events.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestLifecycle_Transition_RetriesOnRoomVersionConflict(t *testing.T) {
	// Arrange: 第一次条件写入撞上并发的房间更新
	rooms, _, events, lifecycle := newLifecycleFixture()
	ctx := context.Background()
	hostID := uint(1)
	room := &domain.Room{ID: 1, Status: domain.StatusLobby, HostID: &hostID, Capacity: 4, Version: 1}
	fresh := &domain.Room{ID: 1, Status: domain.StatusLobby, HostID: &hostID, Capacity: 4, Version: 2}

	rooms.On("FindByID", ctx, uint(1)).Return(room, nil).Once() // loadRoom
	rooms.On("UpdateVersioned", ctx, mock.Anything, uint(1)).
		Return(repository.ErrVersionConflict).Once()
	rooms.On("FindByID", ctx, uint(1)).Return(fresh, nil).Once() // 冲突后重读
	rooms.On("UpdateVersioned", ctx, mock.Anything, uint(2)).Return(nil).Once()
	events.On("Append", ctx, mock.MatchedBy(func(e *domain.RoomEvent) bool {
		return e.NewStatus == domain.StatusFinished && e.Cause == domain.CauseHostClose
	})).Return(nil).Once()

	// Act
	err := lifecycle.FinishRoom(ctx, 1, hostID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, room.Status)
	rooms.AssertExpectations(t)
	events.AssertExpectations(t)
}
