package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// Text 将多个字段按换行拼接后计算 SHA-256。
// 用于 sync_audit 链式留痕（chain_prev_hash / chain_hash）等字段级哈希场景。
func Text(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte("\n"))
		}
		_, _ = h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bytes 对内存中的二进制内容计算 SHA-256。
// 附件在提交前整体读入内存，这里直接对缓冲区取哈希，不落盘。
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// File 读取文件并计算 SHA-256，同时返回文件大小。
// 用于导出产物的完整性记录。
func File(path string) (sum string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
