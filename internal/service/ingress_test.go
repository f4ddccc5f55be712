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

// ingressFixture 把外部状态入口装配到共享 Mock 上。
// UnitOfWork Mock 直接在当前 goroutine 内执行事务函数，
// 事务仓库就是外面的同一组 Mock。
type ingressFixture struct {
	rooms       *mocks.RoomRepository
	memberships *mocks.MembershipRepository
	events      *mocks.RoomEventRepository
	uow         *mocks.UnitOfWork
	svc         *service.IngressService
}

func newIngressFixture() *ingressFixture {
	rooms := new(mocks.RoomRepository)
	memberships := new(mocks.MembershipRepository)
	events := new(mocks.RoomEventRepository)
	uow := new(mocks.UnitOfWork)

	lifecycle := service.NewLifecycleService(rooms, memberships, events, 30*time.Second)
	engine := service.NewSyncEngine(rooms, memberships, lifecycle, 10*time.Second)

	return &ingressFixture{
		rooms:       rooms,
		memberships: memberships,
		events:      events,
		uow:         uow,
		svc:         service.NewIngressService(rooms, memberships, engine, uow),
	}
}

// passthroughStores 让 UnitOfWork Mock 在同一组仓库 Mock 上执行事务函数。
func (f *ingressFixture) passthroughStores() {
	stores := repository.Stores{
		Rooms:       f.rooms,
		Memberships: f.memberships,
		Events:      f.events,
	}
	f.uow.On("Do", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, fn func(repository.Stores) error) error {
			return fn(stores)
		})
}

var wildcardScope = &service.ServiceScope{ServiceName: "game-proc", GameTypes: []string{"*"}}

// --- 测试 Apply (单条上报) ---

func TestIngress_Apply_RejectsOutOfScopeGameType(t *testing.T) {
	// Arrange: 凭证只授权 chess，房间是 codenames
	f := newIngressFixture()
	ctx := context.Background()
	scope := &service.ServiceScope{ServiceName: "chess-proc", GameTypes: []string{"chess"}}
	f.rooms.On("FindByCode", ctx, "ABC123").
		Return(&domain.Room{ID: 1, Code: "ABC123", GameType: "codenames", Status: domain.StatusInGame}, nil).Once()

	// Act
	_, err := f.svc.Apply(ctx, scope, service.StatusReport{
		ParticipantID: 7, RoomCode: "ABC123", Status: "in_game",
	})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAuth), "越权的游戏类型应映射为 ErrAuth")
	f.memberships.AssertNotCalled(t, "FindByRoomAndParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngress_Apply_RejectsInconsistentLocation(t *testing.T) {
	// Arrange: location 与逻辑状态的全映射冲突
	f := newIngressFixture()
	ctx := context.Background()
	f.rooms.On("FindByCode", ctx, "ABC123").
		Return(&domain.Room{ID: 1, Code: "ABC123", GameType: "codenames", Status: domain.StatusInGame}, nil).Once()

	// Act: in_game 状态不可能出现在 lobby
	_, err := f.svc.Apply(ctx, wildcardScope, service.StatusReport{
		ParticipantID: 7, RoomCode: "ABC123", Status: "in_game", Location: "lobby",
	})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
}

func TestIngress_Apply_TranslatesToSyncWrite(t *testing.T) {
	// Arrange: 一条合法的 returned_to_lobby 上报
	f := newIngressFixture()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Code: "ABC123", GameType: "codenames", Status: domain.StatusLobby, Capacity: 4}
	member := &domain.Membership{
		RoomID: 1, ParticipantID: 7,
		Connected: true, Location: domain.LocationGame, InGame: true, Version: 2,
	}

	f.rooms.On("FindByCode", ctx, "ABC123").Return(room, nil).Once()
	f.rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(7)).Return(member, nil)
	f.memberships.On("ListByRoom", ctx, uint(1)).
		Return([]domain.Membership{{ParticipantID: 7, Connected: true}}, nil)
	f.memberships.On("UpdateVersioned", ctx, mock.MatchedBy(func(m *domain.Membership) bool {
		return m.Connected && m.Location == domain.LocationLobby && !m.InGame
	}), uint(2)).Return(nil).Once()

	// Act
	snap, err := f.svc.Apply(ctx, wildcardScope, service.StatusReport{
		ParticipantID: 7, RoomCode: "abc123", Status: "returned_to_lobby",
	})

	// Assert: 房间码大小写不敏感，写入经由同步引擎
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, domain.LocationLobby, snap.Location)
	f.memberships.AssertExpectations(t)
}

// --- 测试 ApplyBulk (批量上报) ---

func TestIngress_ApplyBulk_RequiresEntries(t *testing.T) {
	// Arrange
	f := newIngressFixture()

	// Act
	_, err := f.svc.ApplyBulk(context.Background(), wildcardScope, "ABC123", "game_over", nil)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
}

func TestIngress_ApplyBulk_UnknownParticipantDoesNotSinkBatch(t *testing.T) {
	// Arrange: 三条上报中第二条的参与者不是房间成员
	f := newIngressFixture()
	f.passthroughStores()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Code: "ABC123", GameType: "codenames", Status: domain.StatusInGame, Capacity: 4}
	m1 := &domain.Membership{RoomID: 1, ParticipantID: 1, Connected: true, Location: domain.LocationLobby, Version: 1}
	m3 := &domain.Membership{RoomID: 1, ParticipantID: 3, Connected: true, Location: domain.LocationLobby, Version: 1}

	f.rooms.On("FindByCode", ctx, "ABC123").Return(room, nil).Once()
	f.rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(1)).Return(m1, nil)
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(2)).
		Return(nil, repository.ErrNotFound).Once()
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(3)).Return(m3, nil)
	f.memberships.On("ListByRoom", ctx, uint(1)).Return([]domain.Membership{
		{ParticipantID: 1, Connected: true, InGame: true},
		{ParticipantID: 3, Connected: true, InGame: true},
	}, nil)
	f.memberships.On("UpdateVersioned", ctx, mock.Anything, mock.Anything).Return(nil)

	entries := []service.BulkEntry{
		{ParticipantID: 1, Status: "in_game"},
		{ParticipantID: 2, Status: "in_game"}, // 不是成员，预校验剔除
		{ParticipantID: 3, Status: "in_game"},
	}

	// Act
	result, err := f.svc.ApplyBulk(ctx, wildcardScope, "ABC123", "round_start", entries)

	// Assert: 未知成员逐条失败，其余条目照常提交
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Committed)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.Failed)
	assert.True(t, result.Entries[0].OK)
	assert.False(t, result.Entries[1].OK)
	assert.NotEmpty(t, result.Entries[1].Error)
	assert.True(t, result.Entries[2].OK)
	f.memberships.AssertNumberOfCalls(t, "UpdateVersioned", 2)
}

func TestIngress_ApplyBulk_StorageFailureRollsBackWholeBatch(t *testing.T) {
	// Arrange: 事务内的持久化失败
	f := newIngressFixture()
	f.passthroughStores()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Code: "ABC123", GameType: "codenames", Status: domain.StatusInGame, Capacity: 4}
	m1 := &domain.Membership{RoomID: 1, ParticipantID: 1, Connected: true, Location: domain.LocationLobby, Version: 1}
	m2 := &domain.Membership{RoomID: 1, ParticipantID: 2, Connected: true, Location: domain.LocationLobby, Version: 1}

	f.rooms.On("FindByCode", ctx, "ABC123").Return(room, nil).Once()
	f.rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(1)).Return(m1, nil)
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(2)).Return(m2, nil)
	f.memberships.On("UpdateVersioned", ctx, mock.Anything, mock.Anything).
		Return(assert.AnError)

	entries := []service.BulkEntry{
		{ParticipantID: 1, Status: "in_game"},
		{ParticipantID: 2, Status: "in_game"},
	}

	// Act
	result, err := f.svc.ApplyBulk(ctx, wildcardScope, "ABC123", "round_start", entries)

	// Assert: 整批回滚，没有任何条目算作已应用
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Committed, "持久化失败必须导致整批回滚")
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 2, result.Failed)
	for _, e := range result.Entries {
		assert.False(t, e.OK)
		assert.Contains(t, e.Error, "rolled back")
	}
}

func TestIngress_ApplyBulk_InvalidStatusRejectedPerEntry(t *testing.T) {
	// Arrange: 一条未知逻辑状态 + 一条合法上报
	f := newIngressFixture()
	f.passthroughStores()
	ctx := context.Background()
	room := &domain.Room{ID: 1, Code: "ABC123", GameType: "codenames", Status: domain.StatusInGame, Capacity: 4}
	m1 := &domain.Membership{RoomID: 1, ParticipantID: 1, Connected: true, Location: domain.LocationLobby, Version: 1}

	f.rooms.On("FindByCode", ctx, "ABC123").Return(room, nil).Once()
	f.rooms.On("FindByID", ctx, uint(1)).Return(room, nil)
	f.memberships.On("FindByRoomAndParticipant", ctx, uint(1), uint(1)).Return(m1, nil)
	f.memberships.On("ListByRoom", ctx, uint(1)).
		Return([]domain.Membership{{ParticipantID: 1, Connected: true, InGame: true}}, nil)
	f.memberships.On("UpdateVersioned", ctx, mock.Anything, mock.Anything).Return(nil)

	entries := []service.BulkEntry{
		{ParticipantID: 1, Status: "in_game"},
		{ParticipantID: 9, Status: "teleporting"}, // 封闭集合之外
	}

	// Act
	result, err := f.svc.ApplyBulk(ctx, wildcardScope, "ABC123", "round_start", entries)

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Committed)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Entries[1].OK)
	// 状态解析失败的条目不应触发成员查询
	f.memberships.AssertNotCalled(t, "FindByRoomAndParticipant", ctx, uint(1), uint(9))
}
