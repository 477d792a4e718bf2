package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/compressionutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/vtutil"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		src  recipe.Source
		want Kind
	}{
		{recipe.Source{URL: "https://gitlab.cern.ch/dss/eos.git"}, KindGit},
		{recipe.Source{URL: "https://gitlab.cern.ch/dss/eos.git/"}, KindGit},
		{recipe.Source{URL: "git://example.org/eos"}, KindGit},
		{recipe.Source{URL: "ssh://git@example.org/eos"}, KindGit},
		{recipe.Source{URL: "git@github.com:org/eos"}, KindGit},
		{recipe.Source{URL: "https://example.org/eos", Branch: "main"}, KindGit},
		{recipe.Source{URL: "https://example.org/eos-4.2.tar.gz"}, KindArchive},
		{recipe.Source{URL: "file:///srv/eos"}, KindLocal},
		{recipe.Source{URL: "../eos"}, KindLocal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.src), tt.src.URL)
	}
}

// projectTree writes <tmp>/eos-4.2 and returns its path.
func projectTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "eos-4.2")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "CMakeLists.txt"), []byte("project(eos)\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "eos.cc"), []byte("int main() {}\n"), 0644))
	return root
}

func tarball(t *testing.T) (path string, sum string) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "eos-4.2.tar.gz")
	require.NoError(t, compressionutil.CreateArchive(projectTree(t), path, compressionutil.FormatGzip))
	sum, err := cryptoutil.CalculateFileChecksum(path, cryptoutil.SHA256)
	require.NoError(t, err)
	return path, sum
}

func serveFile(t *testing.T, path string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.ServeFile(w, r, path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertProjectFetched(t *testing.T, dest string) {
	t.Helper()
	assert.FileExists(t, filepath.Join(dest, "CMakeLists.txt"))
	assert.FileExists(t, filepath.Join(dest, "src", "eos.cc"))
}

func TestFetchLocalDirectory(t *testing.T) {
	project := projectTree(t)
	dest := t.TempDir()

	f := New(Options{})
	require.NoError(t, f.Fetch(context.Background(), recipe.Source{URL: "file://" + project}, dest))
	assertProjectFetched(t, dest)
}

func TestFetchRelativeLocalPath(t *testing.T) {
	project := projectTree(t)
	dest := t.TempDir()

	f := New(Options{BaseDir: filepath.Dir(project)})
	require.NoError(t, f.Fetch(context.Background(), recipe.Source{URL: "eos-4.2"}, dest))
	assertProjectFetched(t, dest)
}

func TestFetchLocalArchive(t *testing.T) {
	archive, sum := tarball(t)
	dest := t.TempDir()

	f := New(Options{})
	require.NoError(t, f.Fetch(context.Background(), recipe.Source{URL: archive, SHA256: sum}, dest))
	assertProjectFetched(t, dest)
}

func TestFetchLocalArchiveChecksumMismatch(t *testing.T) {
	archive, _ := tarball(t)

	f := New(Options{})
	err := f.Fetch(context.Background(), recipe.Source{URL: archive, SHA256: "00ff"}, t.TempDir())
	assert.ErrorIs(t, err, commonerrors.ErrSourceFetchFailed)
	assert.ErrorIs(t, err, commonerrors.ErrChecksumFailed)
}

func TestFetchMissingLocalPath(t *testing.T) {
	f := New(Options{})
	err := f.Fetch(context.Background(), recipe.Source{URL: filepath.Join(t.TempDir(), "nope")}, t.TempDir())
	assert.ErrorIs(t, err, commonerrors.ErrSourceFetchFailed)
}

func TestFetchArchiveCachesByChecksum(t *testing.T) {
	archive, sum := tarball(t)
	var hits atomic.Int32
	srv := serveFile(t, archive, &hits)

	f := New(Options{CacheDir: t.TempDir(), RetryDelay: time.Millisecond})
	src := recipe.Source{URL: srv.URL + "/eos-4.2.tar.gz", SHA256: sum}

	first := t.TempDir()
	require.NoError(t, f.Fetch(context.Background(), src, first))
	assertProjectFetched(t, first)

	second := t.TempDir()
	require.NoError(t, f.Fetch(context.Background(), src, second))
	assertProjectFetched(t, second)

	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchArchiveWithoutChecksum(t *testing.T) {
	archive, _ := tarball(t)
	var hits atomic.Int32
	srv := serveFile(t, archive, &hits)

	cache := t.TempDir()
	f := New(Options{CacheDir: cache})
	dest := t.TempDir()
	require.NoError(t, f.Fetch(context.Background(), recipe.Source{URL: srv.URL + "/eos-4.2.tar.gz"}, dest))
	assertProjectFetched(t, dest)

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "unpinned archives are not cached")
}

func TestFetchArchiveChecksumMismatch(t *testing.T) {
	archive, _ := tarball(t)
	var hits atomic.Int32
	srv := serveFile(t, archive, &hits)

	f := New(Options{CacheDir: t.TempDir()})
	err := f.Fetch(context.Background(), recipe.Source{
		URL:    srv.URL + "/eos-4.2.tar.gz",
		SHA256: "sha256:0000000000000000000000000000000000000000000000000000000000000000",
	}, t.TempDir())
	assert.ErrorIs(t, err, commonerrors.ErrSourceFetchFailed)
	assert.ErrorIs(t, err, commonerrors.ErrChecksumFailed)
}

type flaggingLookup struct{}

func (flaggingLookup) LookupFile(ctx context.Context, sha256 string) (*vtutil.Verdict, error) {
	return &vtutil.Verdict{SHA256: sha256, Known: true, Malicious: 5, Undetected: 60}, nil
}

func TestFetchArchiveScanRejectsMalicious(t *testing.T) {
	archive, sum := tarball(t)
	dest := t.TempDir()

	f := New(Options{Scanner: &vtutil.Scanner{Lookup: flaggingLookup{}}})
	err := f.Fetch(context.Background(), recipe.Source{URL: archive, SHA256: sum}, dest)
	assert.ErrorIs(t, err, commonerrors.ErrMaliciousSource)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "flagged archive must not be unpacked")
}

func TestFetchGitRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "README"), []byte("eos\n"), 0644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README")
	require.NoError(t, err)
	_, err = wt.Commit("initial import", &git.CommitOptions{
		Author: &object.Signature{Name: "Recipe Tests", Email: "tests@example.org", When: time.Now()},
	})
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)

	dest := t.TempDir()
	f := New(Options{})
	err = f.Fetch(context.Background(), recipe.Source{URL: "file://" + repoDir, Branch: head.Name().Short()}, dest)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "README"))
}

func TestFetchRequiresURL(t *testing.T) {
	err := New(Options{}).Fetch(context.Background(), recipe.Source{}, t.TempDir())
	assert.ErrorIs(t, err, commonerrors.ErrInvalidArgument)
}
