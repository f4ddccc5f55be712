package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"gamebuddies-server/internal/domain"
	"gamebuddies-server/internal/repository"
)

// AuthService 负责参与者身份的签发与校验 (身份协作方)。
// 协调器核心只消费它产出的 participant ID，不包含任何并发逻辑。
type AuthService struct {
	participantRepo repository.ParticipantRepository
	jwtSecret       []byte
	jwtExpiry       time.Duration
}

// NewAuthService 创建 AuthService 实例。
// jwtSecretKey 应从安全配置中获取；jwtExpiryHours 定义 token 过期的小时数。
func NewAuthService(participantRepo repository.ParticipantRepository, jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if participantRepo == nil {
		panic("ParticipantRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		participantRepo: participantRepo,
		jwtSecret:       []byte(jwtSecretKey),
		jwtExpiry:       time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Register 处理参与者注册。
func (s *AuthService) Register(ctx context.Context, name, password string) (*domain.Participant, error) {
	logCtx := logrus.WithField("name", name)

	if name == "" || password == "" {
		return nil, fmt.Errorf("%w: name and password are required", ErrValidation)
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternal
	}

	participant := &domain.Participant{
		Name:     name,
		Password: hashedPassword,
	}
	if err := s.participantRepo.Save(ctx, participant); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Registration failed: name already exists")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during participant creation")
		return nil, ErrInternal
	}

	logCtx.WithField("participant_id", participant.ID).Info("Participant registered successfully")
	participant.Password = "" // 清除密码哈希再返回
	return participant, nil
}

// Login 处理参与者登录，返回签名后的 JWT。
func (s *AuthService) Login(ctx context.Context, name, password string) (string, error) {
	logCtx := logrus.WithField("name", name)

	participant, err := s.participantRepo.FindByName(ctx, name)
	if err != nil {
		logCtx.WithError(err).Warn("Login attempt failed: error finding participant")
		return "", ErrAuth // 对客户端统一返回认证失败
	}
	if participant == nil {
		logCtx.Warn("Login attempt failed: participant not found (repo returned nil without error)")
		return "", ErrAuth
	}

	if !checkPassword(password, participant.Password) {
		logCtx.Warn("Login attempt failed: invalid password")
		return "", ErrAuth
	}

	token, err := s.generateJWT(participant.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return "", ErrInternal
	}

	logCtx.WithField("participant_id", participant.ID).Info("Participant logged in successfully")
	return token, nil
}

// --- 私有辅助函数 ---

// hashPassword 使用 bcrypt 对密码进行哈希处理
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

// checkPassword 验证提供的密码是否与存储的哈希匹配
func checkPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// generateJWT 为指定参与者 ID 生成 JWT Token
func (s *AuthService) generateJWT(participantID uint) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"participant_id": participantID,
		"exp":            time.Now().Add(s.jwtExpiry).Unix(),
		"iat":            time.Now().Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
