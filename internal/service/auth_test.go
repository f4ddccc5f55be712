package service_test // 测试包

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
	"gamebuddies-server/internal/repository/mocks" // 导入 Mock 实现
	"gamebuddies-server/internal/service"          // 导入被测试的包

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt" // 需要 bcrypt 用于密码哈希比较
)

// --- 测试 Register 方法 ---

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange: 准备 Mock 对象, Service 实例, 和测试数据
	mockParticipantRepo := new(mocks.ParticipantRepository)
	authService, err := service.NewAuthService(mockParticipantRepo, "very-secret-key", 1)
	require.NoError(t, err, "创建 AuthService 不应失败")

	ctx := context.Background()
	name := "newbie"
	password := "StrongPass123"

	// 设置 Mock 预期: Save 被调用时模拟保存成功并填充 ID
	// 注意: MatchedBy 会在 AssertExpectations 时对同一指针重跑，而 Register
	// 返回前会清空 Password 字段，因此哈希需在 Run (仅调用时执行) 中捕获后再断言
	var savedHash string
	mockParticipantRepo.On("Save", ctx, mock.MatchedBy(func(p *domain.Participant) bool {
		assert.Equal(t, name, p.Name)
		return true
	})).
		Run(func(args mock.Arguments) { // 模拟数据库填充字段
			arg := args.Get(1).(*domain.Participant)
			savedHash = arg.Password
			arg.ID = 5
			arg.CreatedAt = time.Now().Add(-time.Second)
		}).
		Return(nil).
		Once()

	// Act
	participant, err := authService.Register(ctx, name, password)

	// Assert
	assert.NoError(t, err, "成功注册时不应有错误")
	require.NotNil(t, participant)
	assert.Equal(t, uint(5), participant.ID)
	assert.Equal(t, name, participant.Name)
	assert.Empty(t, participant.Password, "返回的参与者密码应为空")
	// 验证密码已被哈希，绝不存明文
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(savedHash), []byte(password)), "密码应被正确哈希")

	// Verify
	mockParticipantRepo.AssertExpectations(t)
}

func TestAuthService_Register_NameTaken(t *testing.T) {
	// Arrange
	mockParticipantRepo := new(mocks.ParticipantRepository)
	authService, _ := service.NewAuthService(mockParticipantRepo, "secret", 1)
	ctx := context.Background()

	// 设置 Mock 预期: Save 撞上唯一约束
	mockParticipantRepo.On("Save", ctx, mock.AnythingOfType("*domain.Participant")).
		Return(repository.ErrDuplicateEntry).Once()

	// Act
	_, err := authService.Register(ctx, "existing", "password")

	// Assert
	require.Error(t, err, "名称已存在时应返回错误")
	assert.True(t, errors.Is(err, service.ErrRegistrationFailed), "错误类型应为 ErrRegistrationFailed")

	// Verify
	mockParticipantRepo.AssertExpectations(t)
}

func TestAuthService_Register_EmptyInput(t *testing.T) {
	// Arrange
	mockParticipantRepo := new(mocks.ParticipantRepository)
	authService, _ := service.NewAuthService(mockParticipantRepo, "secret", 1)

	// Act
	_, err := authService.Register(context.Background(), "", "password")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrValidation))
	mockParticipantRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

// --- 测试 Login 方法 ---

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	mockParticipantRepo := new(mocks.ParticipantRepository)
	authService, _ := service.NewAuthService(mockParticipantRepo, "test-secret", 24)
	ctx := context.Background()
	name := "testuser"
	password := "password123"
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	inDb := &domain.Participant{ID: 1, Name: name, Password: string(hashedPassword)}

	// 设置 Mock 预期: FindByName 成功找到参与者
	mockParticipantRepo.On("FindByName", ctx, name).Return(inDb, nil).Once()

	// Act
	token, err := authService.Login(ctx, name, password)

	// Assert
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	// Verify
	mockParticipantRepo.AssertExpectations(t)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	// Arrange
	mockParticipantRepo := new(mocks.ParticipantRepository)
	authService, _ := service.NewAuthService(mockParticipantRepo, "test-secret", 24)
	ctx := context.Background()
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.DefaultCost)
	inDb := &domain.Participant{ID: 1, Name: "testuser", Password: string(hashedPassword)}

	mockParticipantRepo.On("FindByName", ctx, "testuser").Return(inDb, nil).Once()

	// Act
	_, err := authService.Login(ctx, "testuser", "wrong-password")

	// Assert: 对客户端统一返回认证失败
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAuth))
}

func TestAuthService_Login_ParticipantNotFound(t *testing.T) {
	// Arrange
	mockParticipantRepo := new(mocks.ParticipantRepository)
	authService, _ := service.NewAuthService(mockParticipantRepo, "test-secret", 24)
	ctx := context.Background()

	mockParticipantRepo.On("FindByName", ctx, "ghost").
		Return(nil, repository.ErrNotFound).Once()

	// Act
	_, err := authService.Login(ctx, "ghost", "password")

	// Assert: 不区分 "不存在" 和 "密码错误"
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAuth))
}

func TestNewAuthService_RequiresSecret(t *testing.T) {
	// Act
	_, err := service.NewAuthService(new(mocks.ParticipantRepository), "", 1)

	// Assert
	require.Error(t, err, "空的 JWT secret 必须被拒绝")
}
