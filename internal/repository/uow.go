package repository

import "context"

// Stores 将协调器的持久化接口打包，供事务作用域内使用。
type Stores struct {
	Rooms       RoomRepository
	Memberships MembershipRepository
	Events      RoomEventRepository
}

// UnitOfWork 在单个存储事务中执行 fn。
// fn 返回错误时整个事务回滚 —— 批量状态上报的
// "逐房间全有或全无" 语义建立在这之上。
type UnitOfWork interface {
	Do(ctx context.Context, fn func(stores Stores) error) error
}
