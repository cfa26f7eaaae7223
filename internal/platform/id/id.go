package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New 生成带前缀的本地实体 ID：prefix + 毫秒时间戳 + 随机后缀。
// 案件/涉案人/证物等本地对象统一用这种格式，便于日志定位，
// 也能在单机客户端场景下保证足够的唯一性。
func New(prefix string) string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}
