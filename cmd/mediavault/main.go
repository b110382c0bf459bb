// Package main 启动 mediavault.
package main

import (
	"os"

	"github.com/yeisme/mediavault/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
