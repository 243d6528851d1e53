package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumIsDeterministic(t *testing.T) {
	a := Sum(String("partner_id", "42"), String("month", "2026-01"), Int64("gross", 50000))
	b := Sum(String("partner_id", "42"), String("month", "2026-01"), Int64("gross", 50000))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestSumIsOrderSensitive(t *testing.T) {
	a := Sum(String("a", "1"), String("b", "2"))
	b := Sum(String("b", "2"), String("a", "1"))
	assert.NotEqual(t, a, b)
}

func TestSumSeparatesNameAndValue(t *testing.T) {
	// "ab"+"c" must not collide with "a"+"bc".
	a := Sum(String("ab", "c"))
	b := Sum(String("a", "bc"))
	assert.NotEqual(t, a, b)
}

func TestVerify(t *testing.T) {
	fields := []Field{Int64("amount", 25000), String("currency", "USD")}
	digest := Sum(fields...)
	assert.True(t, Verify(digest, fields...))
	assert.False(t, Verify(digest, Int64("amount", 25001), String("currency", "USD")))
	assert.False(t, Verify("", fields...))
}
