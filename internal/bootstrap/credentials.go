package bootstrap

import (
	"fmt"
	"strings"

	"gamebuddies-server/internal/service"
)

// StaticCredentialValidator 用启动时解析的静态凭证表实现
// service.CredentialValidator。生产环境可以换成凭证服务。
type StaticCredentialValidator struct {
	scopes map[string]*service.ServiceScope
}

// ParseServiceKeys 解析 SERVICE_KEYS 环境变量。
// 格式: "key:service_name:gametype1|gametype2;key2:service2:*"
func ParseServiceKeys(raw string) (*StaticCredentialValidator, error) {
	v := &StaticCredentialValidator{scopes: make(map[string]*service.ServiceScope)}
	if raw == "" {
		return v, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed SERVICE_KEYS entry (want key:name:types): %q", entry)
		}
		v.scopes[parts[0]] = &service.ServiceScope{
			ServiceName: parts[1],
			GameTypes:   strings.Split(parts[2], "|"),
		}
	}
	return v, nil
}

// Validate 实现 service.CredentialValidator
func (v *StaticCredentialValidator) Validate(key string) (*service.ServiceScope, error) {
	scope, ok := v.scopes[key]
	if !ok {
		return nil, service.ErrAuth
	}
	return scope, nil
}

// Len 返回已配置的凭证数量
func (v *StaticCredentialValidator) Len() int {
	return len(v.scopes)
}
