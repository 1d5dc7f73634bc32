package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/voxbatch/internal/pipeline"
	"github.com/schollz/progressbar/v3"
)

// newWindowProgress returns hooks that draw one bar per file, advanced as
// windows finish.
func newWindowProgress(enabled bool) pipeline.Hooks {
	if !enabled {
		return pipeline.Hooks{}
	}

	var bar *progressbar.ProgressBar
	return pipeline.Hooks{
		FileStarted: func(path string, windows int) {
			if windows <= 0 {
				bar = nil
				return
			}
			bar = progressbar.NewOptions(
				windows,
				progressbar.OptionSetDescription(fmt.Sprintf("Transcribing %s", filepath.Base(path))),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(20),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		},
		WindowDone: func(_ string, done, total int) {
			if bar == nil {
				return
			}
			_ = bar.Set(done)
			if done >= total {
				_ = bar.Finish()
				bar = nil
			}
		},
	}
}
