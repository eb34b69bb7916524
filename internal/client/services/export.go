package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"

	"github.com/simonexmachina/the-work/internal/filex"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/netx"
)

// Exporter asks the server to write an export and returns a download URL.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// ExportService downloads server-side exports into a local directory.
type ExportService struct {
	client Exporter
	dir    string
	logger logging.Logger

	download func(ctx context.Context, url string, dst string) (int64, error)
}

func NewExportService(client Exporter, dir string, logger logging.Logger) *ExportService {
	return &ExportService{
		client:   client,
		dir:      dir,
		logger:   logger.With("module", "export"),
		download: downloadTo,
	}
}

// Export requests an export and saves it under the export directory. It
// returns the local path and the presigned URL.
func (s *ExportService) Export(ctx context.Context) (string, string, error) {
	link, err := s.client.Export(ctx)
	if err != nil {
		return "", "", fmt.Errorf("export request: %w", err)
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", link, fmt.Errorf("bad export url: %w", err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", link, fmt.Errorf("bad export url: no object name in %q", u.Path)
	}

	dir, err := filex.EnsureSubdDir(s.dir)
	if err != nil {
		return "", link, err
	}
	dst := filepath.Join(dir, name)

	n, err := s.download(ctx, link, dst)
	if err != nil {
		return "", link, fmt.Errorf("export download: %w", err)
	}
	s.logger.Info(ctx, "export downloaded", "path", dst, "bytes", n)
	return dst, link, nil
}

func downloadTo(ctx context.Context, link, dst string) (int64, error) {
	f, err := filex.CreateExclusive(filepath.Dir(dst), filepath.Base(dst))
	if err != nil {
		return 0, err
	}
	n, err := netx.DownloadFromPresignedURL(ctx, link, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}
