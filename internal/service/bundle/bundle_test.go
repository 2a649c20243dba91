package bundle

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/Stanislav-it/docubeauty/internal/common"
	"github.com/Stanislav-it/docubeauty/internal/config"
	"github.com/Stanislav-it/docubeauty/internal/entity"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (*bundleService, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewBundleServiceWithFS(fs, &config.CacheConfig{Dir: "/cache"}, log), fs
}

func dirCategory() *entity.Category {
	return &entity.Category{
		Slug:       "zgody",
		Kind:       entity.CategoryDir,
		SourcePath: "/goods/zgody",
	}
}

func zipCategory() *entity.Category {
	return &entity.Category{
		Slug:       "pakiet",
		Kind:       entity.CategoryZip,
		SourcePath: "/goods/pakiet.zip",
	}
}

func TestBundleForDirectory(t *testing.T) {
	s, fs := testService(t)

	require.NoError(t, afero.WriteFile(fs, "/goods/zgody/zgoda.pdf", []byte("pdf one"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/goods/zgody/docs/zalecenia.pdf", []byte("pdf two"), 0o644))

	out, err := s.BundleForDirectory(dirCategory())
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, out)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := []string{zr.File[0].Name, zr.File[1].Name}
	require.Contains(t, names, "zgoda.pdf")
	require.Contains(t, names, "docs/zalecenia.pdf")
}

func TestBundleForDirectoryIsCached(t *testing.T) {
	s, fs := testService(t)

	require.NoError(t, afero.WriteFile(fs, "/goods/zgody/zgoda.pdf", []byte("pdf"), 0o644))

	first, err := s.BundleForDirectory(dirCategory())
	require.NoError(t, err)
	stat1, err := fs.Stat(first)
	require.NoError(t, err)

	second, err := s.BundleForDirectory(dirCategory())
	require.NoError(t, err)
	require.Equal(t, first, second)

	stat2, err := fs.Stat(second)
	require.NoError(t, err)
	require.Equal(t, stat1.ModTime(), stat2.ModTime(), "cache hit must not rebuild")
}

func TestBundleForDirectoryMissingSource(t *testing.T) {
	s, _ := testService(t)

	_, err := s.BundleForDirectory(dirCategory())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestExtractMember(t *testing.T) {
	s, fs := testService(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("sub/formularz.pdf")
	require.NoError(t, err)
	_, err = w.Write([]byte("formularz content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, "/goods/pakiet.zip", buf.Bytes(), 0o644))

	m := &entity.Member{ID: "formularz-pdf-x", Display: "sub/formularz.pdf", Rel: "sub/formularz.pdf", Ext: ".pdf"}

	out, err := s.ExtractMember(zipCategory(), m)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, out)
	require.NoError(t, err)
	require.Equal(t, "formularz content", string(data))

	// Second call resolves to the same cached artifact.
	again, err := s.ExtractMember(zipCategory(), m)
	require.NoError(t, err)
	require.Equal(t, out, again)
}

func TestExtractMemberMissingEntry(t *testing.T) {
	s, fs := testService(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("consent.pdf")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, "/goods/pakiet.zip", buf.Bytes(), 0o644))

	m := &entity.Member{ID: "nope", Rel: "nope.pdf"}

	_, err = s.ExtractMember(zipCategory(), m)
	require.ErrorIs(t, err, common.ErrNotFound)
}
