package bootstrap_test // 测试包

import (
	"errors"
	"testing"

	"gamebuddies-server/internal/bootstrap"
	"gamebuddies-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceKeys_MultipleEntries(t *testing.T) {
	// Arrange & Act
	v, err := bootstrap.ParseServiceKeys("k1:codenames-proc:codenames;k2:hub-proc:*;k3:arcade:pong|breakout")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())

	scope, err := v.Validate("k1")
	require.NoError(t, err)
	assert.Equal(t, "codenames-proc", scope.ServiceName)
	assert.True(t, scope.Allows("codenames"))
	assert.False(t, scope.Allows("pong"))

	scope, err = v.Validate("k2")
	require.NoError(t, err)
	assert.True(t, scope.Allows("anything"), "通配符范围覆盖一切游戏类型")

	scope, err = v.Validate("k3")
	require.NoError(t, err)
	assert.True(t, scope.Allows("pong"))
	assert.True(t, scope.Allows("breakout"))
	assert.False(t, scope.Allows("tetris"))
}

func TestParseServiceKeys_EmptyIsValid(t *testing.T) {
	// Act: 未配置任何外部服务
	v, err := bootstrap.ParseServiceKeys("")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())

	_, err = v.Validate("anything")
	assert.True(t, errors.Is(err, service.ErrAuth))
}

func TestParseServiceKeys_MalformedEntry(t *testing.T) {
	// Act: 缺少游戏类型段
	_, err := bootstrap.ParseServiceKeys("key-only:name")

	// Assert
	require.Error(t, err)
}

func TestStaticCredentialValidator_UnknownKey(t *testing.T) {
	// Arrange
	v, err := bootstrap.ParseServiceKeys("k1:proc:*")
	require.NoError(t, err)

	// Act
	_, err = v.Validate("k2")

	// Assert
	assert.True(t, errors.Is(err, service.ErrAuth))
}
