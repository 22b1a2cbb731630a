package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput writes each exchange to <directory>/<message id>.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears dir before use.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}

// SlogLogger routes resty's internal warnings into slog.
type SlogLogger struct{}

func (SlogLogger) Errorf(format string, v ...any) {
	slog.Error("resty: " + sprintf(format, v...))
}

func (SlogLogger) Warnf(format string, v ...any) {
	slog.Warn("resty: " + sprintf(format, v...))
}

func (SlogLogger) Debugf(format string, v ...any) {
	slog.Debug("resty: " + sprintf(format, v...))
}
