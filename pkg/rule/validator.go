// Package rule 基于 go-playground/validator 的结构体校验，标签名为 rule.
//
// 除内置规则外注册了：
//
//	filename    单层文件名，不含路径分隔符与控制字符
//	storagekey  对象存储中的相对键，不以 / 开头且不含 .. 段
package rule

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	inst *validator.Validate
	once sync.Once
)

func setup() {
	inst = validator.New()
	inst.SetTagName("rule")
	inst.RegisterTagNameFunc(fieldName)

	_ = inst.RegisterValidation("filename", validFileName)
	_ = inst.RegisterValidation("storagekey", validStorageKey)
}

// fieldName 错误里优先使用 json 或 mapstructure 名.
func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "mapstructure"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}

	return f.Name
}

func validFileName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || s == "." || s == ".." {
		return false
	}

	return !strings.ContainsFunc(s, func(r rune) bool {
		return r == '/' || r == '\\' || unicode.IsControl(r)
	})
}

func validStorageKey(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || strings.HasPrefix(s, "/") || strings.ContainsFunc(s, unicode.IsControl) {
		return false
	}

	for seg := range strings.SplitSeq(s, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}

	return true
}

// Engine 返回全局 validator.
func Engine() *validator.Validate {
	once.Do(setup)
	return inst
}

// RegisterValidation 注册自定义规则.
func RegisterValidation(tag string, fn validator.Func, opts ...bool) error {
	return Engine().RegisterValidation(tag, fn, opts...)
}

// ValidateStruct 校验结构体.
func ValidateStruct(s any) error {
	return Engine().Struct(s)
}

// ValidateVar 按规则校验单个值，如 ValidateVar(id, "required,uuid").
func ValidateVar(field any, tag string) error {
	return Engine().Var(field, tag)
}

// ValidationErrors 字段路径到失败规则的映射.
type ValidationErrors map[string]string

// Error 按字段排序输出，便于放进响应体.
func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}

	return strings.Join(parts, "; ")
}

// Errors 把 validator 的错误整理为 ValidationErrors. 非校验错误原样返回.
func Errors(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	out := make(ValidationErrors, len(ve))
	for _, fe := range ve {
		ns := fe.Namespace()
		if _, rest, ok := strings.Cut(ns, "."); ok {
			ns = rest
		}

		msg := fe.Tag()
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}

		out[ns] = msg
	}

	return out
}
