package source

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"
)

// TailFile follows path like tail -F and feeds each new line to the source
// until ctx is done. Existing content is skipped so an old log does not
// count as activity. The file may be rotated or not exist yet.
func (s *LineSource) TailFile(ctx context.Context, path string) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()

	log := logrus.WithFields(logrus.Fields{"component": "status-file", "path": path})
	log.Debug("tailing status file")

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				if err := t.Err(); err != nil {
					return fmt.Errorf("tail %s: %w", path, err)
				}
				return nil
			}
			if line.Err != nil {
				log.WithError(line.Err).Warn("status file read error")
				continue
			}
			// tail splits on '\n' only; redraws within a line still count.
			var splitter lineSplitter
			for _, part := range splitter.split(append([]byte(line.Text), '\n')) {
				s.HandleLine(part)
			}
		}
	}
}
