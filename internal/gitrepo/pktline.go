package gitrepo

import "fmt"

// AdvertisementPrelude 构造 info/refs 响应的 pkt-line 前导
// 格式: 4 位十六进制长度 + "# service=git-<rpc>\n" + flush 包 "0000"
func AdvertisementPrelude(service string) []byte {
	line := fmt.Sprintf("# service=%s\n", service)
	return []byte(fmt.Sprintf("%04x%s0000", len(line)+4, line))
}
