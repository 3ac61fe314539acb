// Package all registers every sbvc command.
package all

import (
	_ "github.com/keshon/sbvc/internal/command/checkout"
	_ "github.com/keshon/sbvc/internal/command/commit"
	_ "github.com/keshon/sbvc/internal/command/diff"
	_ "github.com/keshon/sbvc/internal/command/export"
	_ "github.com/keshon/sbvc/internal/command/help"
	_ "github.com/keshon/sbvc/internal/command/ingest"
	_ "github.com/keshon/sbvc/internal/command/init"
	_ "github.com/keshon/sbvc/internal/command/log"
	_ "github.com/keshon/sbvc/internal/command/projects"
	_ "github.com/keshon/sbvc/internal/command/pull"
	_ "github.com/keshon/sbvc/internal/command/push"
	_ "github.com/keshon/sbvc/internal/command/serve"
	_ "github.com/keshon/sbvc/internal/command/status"
	_ "github.com/keshon/sbvc/internal/command/verify"
)
