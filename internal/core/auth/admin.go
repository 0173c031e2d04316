package auth

import (
	"crypto/subtle"

	"subgate/pkg/utils"
)

// AdminCredentials 单一运营账号，密码以 bcrypt hash 配置
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

func (a AdminCredentials) Configured() bool { return a.Username != "" && a.PasswordHash != "" }

func (a AdminCredentials) Verify(username, password string) bool {
	if !a.Configured() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	// 用户名不对也跑一次 bcrypt，耗时一致
	passOK := utils.CheckPassword(password, a.PasswordHash)
	return userOK && passOK
}
