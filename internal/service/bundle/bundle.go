package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/config"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/Stanislav-it/docubeauty/internal/util"
	"github.com/spf13/afero"
)

const (
	serviceName = "bundle"

	bundlesSubdir = "bundles"
	filesSubdir   = "files"

	bundleKeyLen = 12
	memberKeyLen = 16

	tmpSuffix = ".tmp"
)

// bundleService materializes deliverable artifacts and memoizes them by a
// content fingerprint (source path + mtime), so repeated downloads cost one
// stat. Artifacts are built into a temp sibling and renamed into place; a
// concurrent reader never sees a partial archive. Stale artifacts are never
// reaped, the cache grows with content changes.
type bundleService struct {
	fs  afero.Fs
	cfg *config.CacheConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-artifact build locks

	log *slog.Logger
}

func NewBundleService(cfg *config.CacheConfig, log *slog.Logger) *bundleService {
	return NewBundleServiceWithFS(afero.NewOsFs(), cfg, log)
}

func NewBundleServiceWithFS(fs afero.Fs, cfg *config.CacheConfig, log *slog.Logger) *bundleService {
	return &bundleService{
		fs:    fs,
		cfg:   cfg,
		locks: make(map[string]*sync.Mutex),
		log:   log.With(slog.String("service", serviceName)),
	}
}

// BundleForDirectory returns a zip of a directory-backed category, building
// it on first request for the current source mtime.
func (s *bundleService) BundleForDirectory(cat *entity.Category) (string, error) {
	root := cat.SourcePath

	stat, err := s.fs.Stat(root)
	if err != nil || !stat.IsDir() {
		return "", fmt.Errorf("category dir %q: %w", cat.Slug, common.ErrNotFound)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}

	key := util.ShortHash(abs+":"+strconv.FormatInt(stat.ModTime().Unix(), 10), bundleKeyLen)
	out := filepath.Join(s.cfg.Dir, bundlesSubdir, cat.Slug, cat.Slug+"-"+key+".zip")

	lock := s.lockFor(out)
	lock.Lock()
	defer lock.Unlock()

	if s.fileExists(out) {
		return out, nil
	}

	if err := s.buildBundle(root, out); err != nil {
		return "", err
	}

	s.log.Info("Built bundle", slog.String("slug", cat.Slug), slog.String("path", out))

	return out, nil
}

// ExtractMember returns a single file extracted from an archive-backed
// category, cached by (archive, mtime, entry name).
func (s *bundleService) ExtractMember(cat *entity.Category, m *entity.Member) (string, error) {
	stat, err := s.fs.Stat(cat.SourcePath)
	if err != nil {
		return "", fmt.Errorf("category archive %q: %w", cat.Slug, common.ErrNotFound)
	}

	key := util.ShortHash(cat.SourcePath+"|"+strconv.FormatInt(stat.ModTime().Unix(), 10)+"|"+m.Rel, memberKeyLen)

	base := path.Base(strings.ReplaceAll(m.Rel, "\\", "/"))
	out := filepath.Join(s.cfg.Dir, filesSubdir, cat.Slug, util.Slugify(base)+"-"+key+path.Ext(base))

	lock := s.lockFor(out)
	lock.Lock()
	defer lock.Unlock()

	if s.fileExists(out) {
		return out, nil
	}

	if err := s.extract(cat.SourcePath, m.Rel, out); err != nil {
		return "", err
	}

	s.log.Info("Extracted member", slog.String("slug", cat.Slug), slog.String("member", m.ID))

	return out, nil
}

func (s *bundleService) buildBundle(root, out string) (err error) {
	if err := s.fs.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	tmp := out + tmpSuffix
	f, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			_ = s.fs.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(f)

	err = afero.Walk(s.fs, root, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
			return werr
		}
		if info.IsDir() {
			return nil
		}

		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		// Entries escaping the root never end up in the archive.
		if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
			return nil
		}

		w, zerr := zw.Create(rel)
		if zerr != nil {
			return zerr
		}

		src, oerr := s.fs.Open(p)
		if oerr != nil {
			return oerr
		}
		defer src.Close()

		_, cerr := io.Copy(w, src)

		return cerr
	})
	if err != nil {
		zw.Close()

		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	if err = zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	if err = s.fs.Rename(tmp, out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	return nil
}

func (s *bundleService) extract(archivePath, rel, out string) error {
	f, err := s.fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	zr, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	target := strings.ReplaceAll(rel, "\\", "/")
	for _, zf := range zr.File {
		if strings.ReplaceAll(zf.Name, "\\", "/") != target {
			continue
		}

		return s.copyEntry(zf, out)
	}

	return fmt.Errorf("archive member %q: %w", rel, common.ErrNotFound)
}

func (s *bundleService) copyEntry(zf *zip.File, out string) error {
	if err := s.fs.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	src, err := zf.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}
	defer src.Close()

	tmp := out + tmpSuffix
	dst, err := s.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = s.fs.Remove(tmp)

		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	if err := s.fs.Rename(tmp, out); err != nil {
		return fmt.Errorf("%w: %v", common.ErrBuildFailure, err)
	}

	return nil
}

func (s *bundleService) lockFor(p string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[p]
	if !ok {
		l = &sync.Mutex{}
		s.locks[p] = l
	}

	return l
}

func (s *bundleService) fileExists(p string) bool {
	_, err := s.fs.Stat(p)

	return err == nil
}
