//go:build !no_sqlite && cgo

package db

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yeisme/mediavault/pkg/configs"
)

func init() {
	RegisterDialectorFactory(configs.SQLite, func(dsn string) gorm.Dialector {
		return sqlite.Open(mattnDSN(dsn))
	})
}

// mattnDSN 把 glebarez 风格的 _pragma=name(v) 参数改写为 mattn 驱动识别的 _name=v.
func mattnDSN(dsn string) string {
	base, query, ok := strings.Cut(dsn, "?")
	if !ok {
		return dsn
	}

	params := strings.Split(query, "&")
	for i, p := range params {
		v, found := strings.CutPrefix(p, "_pragma=")
		if !found {
			continue
		}

		name, arg, _ := strings.Cut(strings.TrimSuffix(v, ")"), "(")
		params[i] = "_" + name + "=" + arg
	}

	return base + "?" + strings.Join(params, "&")
}
