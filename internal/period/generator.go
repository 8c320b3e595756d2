// Package period 负责生成期次编号。
//
// 期次编号只要求唯一且难以被提前猜到，与开奖公平性无关：
// 开奖结果完全由已售份额的购买时间戳决定（见 internal/algorithm）。
package period

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const (
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	randomLen    = 6
)

// Generator 期次编号生成器
type Generator struct {
	now func() time.Time
}

// NewGenerator 创建期次编号生成器
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// Generate 生成一个期次编号：时间戳(base36) + 随机段 + 校验字符。
// 唯一性最终由数据库的唯一索引兜底，冲突时由调用方重新生成并重试。
func (g *Generator) Generate() string {
	ts := encodeBase36(g.now().UnixMilli())

	buf := make([]byte, randomLen)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 失败时退回纳秒时间戳，唯一索引仍然兜底
		return g.fallback(ts)
	}

	var sb strings.Builder
	sb.WriteString(ts)
	for _, b := range buf {
		sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
	}
	body := sb.String()
	return body + string(checksumChar(body))
}

// Valid 校验期次编号的校验位是否正确
func Valid(code string) bool {
	if len(code) < 2 {
		return false
	}
	body, check := code[:len(code)-1], code[len(code)-1]
	return checksumChar(body) == check
}

// checksumChar 对编号主体计算校验字符
func checksumChar(body string) byte {
	sum := 0
	for i := 0; i < len(body); i++ {
		idx := strings.IndexByte(codeAlphabet, body[i])
		if idx < 0 {
			idx = int(body[i])
		}
		sum += idx * (i + 1)
	}
	return codeAlphabet[sum%len(codeAlphabet)]
}

func encodeBase36(n int64) string {
	if n == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = codeAlphabet[n%36]
		n /= 36
	}
	return string(buf[i:])
}

func (g *Generator) fallback(ts string) string {
	body := fmt.Sprintf("%s%d", ts, g.now().UnixNano()%1_000_000)
	return body + string(checksumChar(body))
}
