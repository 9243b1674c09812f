package rbac

// 权限常量
const (
	PermissionSendMessage  = "messages:send"
	PermissionReadRecords  = "records:read"
	PermissionWriteRecords = "records:write"
	// 导入、清空等批量操作
	PermissionManageRecords = "records:manage"
)

// 角色常量
const (
	RolePage  = "page"
	RoleAdmin = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RolePage: {
		PermissionSendMessage,
		PermissionReadRecords,
	},
	RoleAdmin: {
		PermissionSendMessage,
		PermissionReadRecords,
		PermissionWriteRecords,
		PermissionManageRecords,
	},
}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 返回错误而不是布尔值，便于处理
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{Role: role, Permission: permission}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
