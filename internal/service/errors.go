package service

import "errors"

// 服务层错误分类。对外接口 (HTTP/WS) 依赖 errors.Is 做映射，
// 这里的任何失败都只影响单个房间/参与者操作，绝不致命。
var (
	// ErrValidation 表示输入不合法 (房间码格式、未知逻辑状态等)
	ErrValidation = errors.New("validation failed")
	// ErrConflict 表示乐观并发重试次数耗尽，调用方应重新读取后在更高层重试
	ErrConflict = errors.New("version conflict detected")
	// ErrNotFound 表示房间/参与者/成员记录不存在
	ErrNotFound = errors.New("not found")
	// ErrAuth 表示凭证缺失、无效或超出授权范围
	ErrAuth = errors.New("authentication failed")
	// ErrRateLimit 表示请求频率超限
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrTransientStorage 表示可退避重试的存储故障
	ErrTransientStorage = errors.New("transient storage error")
	// ErrInternal 表示未分类的内部错误
	ErrInternal = errors.New("internal server error")

	// ErrRegistrationFailed 注册失败: 名称已被占用
	ErrRegistrationFailed = errors.New("registration failed: name already exists")

	// --- 加入房间的机器可读拒绝原因 ---

	// ErrRoomFull 房间已满员
	ErrRoomFull = errors.New("room is full")
	// ErrWrongGameType 请求的游戏类型与房间声明不符
	ErrWrongGameType = errors.New("wrong game type for this room")
	// ErrRoomNotJoinable 房间当前状态不允许加入
	ErrRoomNotJoinable = errors.New("room is not joinable in its current status")

	// ErrNotHost 操作要求房主权限
	ErrNotHost = errors.New("operation requires host role")
	// ErrIllegalTransition 状态机转换表不允许该转换
	ErrIllegalTransition = errors.New("illegal room status transition")
)
