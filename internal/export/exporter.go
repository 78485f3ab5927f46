package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rshade/gradebook/internal/student"
)

// ErrNoEncoder is returned when a FileExporter has no encoder for a format.
var ErrNoEncoder = errors.New("no encoder registered for format")

// FileExporter writes report files to the local filesystem. Files are written to a
// temporary name in the destination directory and renamed into place, so a path is
// either absent or complete.
type FileExporter struct {
	encoders map[Format]Encoder
}

// NewFileExporter returns an exporter with the default encoder table.
func NewFileExporter() *FileExporter {
	return &FileExporter{encoders: DefaultEncoders()}
}

// WithEncoder replaces the encoder for f.
func (e *FileExporter) WithEncoder(f Format, enc Encoder) *FileExporter {
	e.encoders[f] = enc
	return e
}

// Export writes s as format to basePath plus the format's extension and returns the
// written path. basePath must not carry an extension.
func (e *FileExporter) Export(ctx context.Context, s student.Student, format Format, basePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	enc, ok := e.encoders[format]
	if !ok || !format.IsConcrete() {
		return "", fmt.Errorf("%w: %s", ErrNoEncoder, format)
	}

	path := basePath + format.Extension()
	if err := writeAtomic(path, func(f *os.File) error { return enc.Encode(f, s) }); err != nil {
		return "", fmt.Errorf("exporting %s as %s: %w", s.ID, format, err)
	}
	return path, nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err = write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
