package metadatastore

import (
	"fmt"

	"github.com/graphbrain/kgqa/internal/platform/logger"
)

// gormWriter adapts gorm's logger.Writer (a Printf-shaped interface) onto
// the structured Logger used throughout the rest of the service.
type gormWriter struct {
	log *logger.Logger
}

func newGormWriter(log *logger.Logger) *gormWriter {
	return &gormWriter{log: log}
}

func (w *gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn("gorm", "message", fmt.Sprintf(format, args...))
}
