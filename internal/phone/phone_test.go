package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_PunctuationVariants(t *testing.T) {
	variants := []string{
		"(11) 99999-8888",
		"11999998888",
		"+55 11 99999-8888",
		"+5511999998888",
		"055 (11) 99999 8888",
	}
	for _, raw := range variants {
		assert.Equal(t, "+5511999998888", Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalize_Landline(t *testing.T) {
	assert.Equal(t, "+551133334444", Normalize("(11) 3333-4444"))
	assert.Equal(t, "+551133334444", Normalize("551133334444"))
}

func TestNormalize_Invalid(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"123",
		"(11) 1111-2222",   // landline subscriber must start 2-5
		"(11) 89999-8888",  // 9-digit subscriber must start 9
		"(01) 99999-8888",  // area code below 11
		"(10) 99999-8888",  // area code below 11
		"+1 212 555 0100",  // wrong country
		"119999988881234",  // too long
	}
	for _, raw := range cases {
		assert.Empty(t, Normalize(raw), "raw=%q", raw)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	canon := Normalize("(11) 99999-8888")
	assert.Equal(t, canon, Normalize(canon))
}

func TestIsMobile(t *testing.T) {
	assert.True(t, IsMobile("+5511988887777"))
	assert.False(t, IsMobile("+551133334444"))
	assert.False(t, IsMobile("garbage"))
}

func TestParseList(t *testing.T) {
	got := ParseList("(11) 99999-8888; 11 3333-4444 / notaphone, (21) 98888-7777")
	assert.Equal(t, []string{"+5511999998888", "+551133334444", "+5521988887777"}, got)
}

func TestParseList_AllInvalid(t *testing.T) {
	assert.Nil(t, ParseList("n/a; unknown"))
}

func TestMerge_MobilesFirst(t *testing.T) {
	got := Merge("+551133332222", "(11) 98888-7777")
	assert.Equal(t, "+5511988887777, +551133332222", got)
}

func TestMerge_Dedup(t *testing.T) {
	got := Merge("+5511988887777", "+5511988887777, +551133332222")
	assert.Equal(t, "+5511988887777, +551133332222", got)
}

func TestMerge_Idempotent(t *testing.T) {
	merged := Merge("", "(11) 98888-7777; (11) 3333-2222", "(21) 97777-6666")
	assert.Equal(t, merged, Merge(merged))
	assert.Equal(t, merged, Merge(merged, merged))
}

func TestMerge_SetCommutative(t *testing.T) {
	a := "(11) 98888-7777"
	b := "(11) 3333-2222"
	assert.Equal(t, Merge("", a, b), Merge("", b, a))
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge("", "n/a"))
	assert.Empty(t, Merge(""))
}
