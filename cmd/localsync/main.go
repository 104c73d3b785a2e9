// Command localsync is a thin demonstration entry point over the
// orchestrator package. It is not the CLI front-end spec.md excludes
// from scope: it accepts exactly SRC and DST positional arguments and
// runs an archive-preset copy, with no flag grammar, localization, or
// progress rendering. A real front-end would build its own Options and
// ProgressReporter and call orchestrator.New directly, as this does.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jmalicki/localsync/internal/config"
	"github.com/jmalicki/localsync/internal/copyengine"
	"github.com/jmalicki/localsync/internal/orchestrator"
	"github.com/jmalicki/localsync/internal/synclog"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "usage: %s SRC DST\n", os.Args[0])
		os.Exit(2)
	}
	src, dst := os.Args[1], os.Args[2]

	logger := synclog.New(os.Stderr, synclog.Info)
	orch := orchestrator.New(config.Archive(), copyengine.Auto, logger, nil)

	result, err := orch.Run(context.Background(), src, dst)
	if err != nil {
		logger.Errorf(src, "run failed: %v", err)
		os.Exit(1)
	}

	for _, entryErr := range result.Errors {
		logger.Errorf(entryErr.RelPath, "%v", entryErr.Err)
	}

	logger.Infof(nil, "files=%d dirs=%d bytes=%d symlinks=%d hardlinks=%d special=%d errors=%d duration=%s",
		result.Stats.FilesCopied, result.Stats.DirectoriesCreated, result.Stats.BytesCopied,
		result.Stats.SymlinksProcessed, result.Stats.HardlinksMaterialized, result.Stats.SpecialFilesCreated,
		result.Stats.Errors, result.Duration)

	if len(result.Errors) > 0 {
		os.Exit(1)
	}
}
