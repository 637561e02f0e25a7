package appfs

import "embed"

// FS holds the files shipped within the binaries: DB migrations, email templates & password lists.
//
//go:embed migrations all:assets
var FS embed.FS
