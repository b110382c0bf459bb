//go:build !no_mysql

package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/yeisme/mediavault/pkg/configs"
)

func init() {
	open := func(dsn string) gorm.Dialector {
		return mysql.New(mysql.Config{
			DSN:               dsn,
			DefaultStringSize: 255,
		})
	}

	RegisterDialectorFactory(configs.MySQL, open)
	RegisterDialectorFactory(configs.MariaDB, open)
}
