package rule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/rule"
)

type upload struct {
	Name string `json:"file_name" rule:"required,filename"`
	Key  string `json:"key"       rule:"omitempty,storagekey"`
	Size int64  `json:"size"      rule:"min=0"`
}

// TestValidateStruct 测试内置规则与自定义规则.
func TestValidateStruct(t *testing.T) {
	require.NoError(t, rule.ValidateStruct(upload{Name: "clip.mp4", Key: "assets/a1/clip.mp4"}))

	cases := map[string]upload{
		"empty name":    {},
		"path in name":  {Name: "../etc/passwd"},
		"dot name":      {Name: ".."},
		"control char":  {Name: "a\x00b.mp4"},
		"absolute key":  {Name: "a.mp4", Key: "/assets/a.mp4"},
		"traversal key": {Name: "a.mp4", Key: "assets/../secret"},
		"double slash":  {Name: "a.mp4", Key: "assets//a.mp4"},
		"negative size": {Name: "a.mp4", Size: -1},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, rule.ValidateStruct(in))
		})
	}
}

// TestErrors 测试错误按 json 字段名整理.
func TestErrors(t *testing.T) {
	err := rule.Errors(rule.ValidateStruct(upload{Name: "a/b", Size: -1}))

	var ve rule.ValidationErrors
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "filename", ve["file_name"])
	assert.Equal(t, "min=0", ve["size"])
	assert.Equal(t, "file_name: filename; size: min=0", ve.Error())
}

// TestValidateVar 测试单值校验.
func TestValidateVar(t *testing.T) {
	require.NoError(t, rule.ValidateVar("3f1c0b8e-7a0e-4c1d-9a55-0f6f3c1d2e4b", "required,uuid"))
	require.Error(t, rule.ValidateVar("not-a-uuid", "required,uuid"))
	require.Error(t, rule.ValidateVar("", "required"))
}
