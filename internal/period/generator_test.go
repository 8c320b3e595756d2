package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	g := NewGenerator()

	code := g.Generate()
	require.NotEmpty(t, code)

	// 时间戳段(毫秒base36约9字符) + 随机段6字符 + 校验位1字符
	assert.GreaterOrEqual(t, len(code), 10)
	for i := 0; i < len(code); i++ {
		assert.Contains(t, codeAlphabet, string(code[i]), "编号只能包含大写字母和数字")
	}
}

func TestGenerateChecksum(t *testing.T) {
	g := NewGenerator()

	for i := 0; i < 100; i++ {
		code := g.Generate()
		assert.True(t, Valid(code), "生成的编号必须通过校验: %s", code)
	}
}

func TestValidRejectsTampered(t *testing.T) {
	g := NewGenerator()
	code := g.Generate()

	// 翻转校验位
	last := code[len(code)-1]
	var replaced byte = 'A'
	if last == 'A' {
		replaced = 'B'
	}
	tampered := code[:len(code)-1] + string(replaced)
	assert.False(t, Valid(tampered))

	assert.False(t, Valid(""))
	assert.False(t, Valid("X"))
}

func TestGenerateUniqueness(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]struct{}, 100000)
	for i := 0; i < 100000; i++ {
		code := g.Generate()
		_, dup := seen[code]
		require.False(t, dup, "编号重复: %s", code)
		seen[code] = struct{}{}
	}
}

func TestGenerateUsesClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := &Generator{now: func() time.Time { return fixed }}

	prefix := encodeBase36(fixed.UnixMilli())
	code := g.Generate()
	assert.Equal(t, prefix, code[:len(prefix)])
}
