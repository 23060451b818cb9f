// Package migrations 内嵌智能体账本所需的版本化 SQL 迁移脚本。
package migrations

import "embed"

// Files 按文件名中的版本号顺序被存储层逐一应用。
//
//go:embed *.sql
var Files embed.FS
