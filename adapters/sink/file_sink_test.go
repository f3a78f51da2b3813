package sink

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"taxosurv/domain/survival"
	"taxosurv/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestFileSink_RoutesByEndpoint(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, "OS_result.txt", "PFS_result.txt")
	require.NoError(t, err)

	require.NoError(t, s.Emit(survival.Comparison{Cancer: "BRCA", Taxon: "taxonA", Endpoint: survival.EndpointOS, PValue: 0.5, Enriched: survival.GroupNonzero}))
	require.NoError(t, s.Emit(survival.Comparison{Cancer: "BRCA", Taxon: "taxonA", Endpoint: survival.EndpointPFS, PValue: math.NaN(), Enriched: survival.GroupUndetermined}))
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"BRCA,taxonA,OS_p=0.5,Enriched=Nonzero"}, readLines(t, filepath.Join(dir, "OS_result.txt")))
	assert.Equal(t, []string{"BRCA,taxonA,PFS_p=nan,Enriched=Undetermined"}, readLines(t, filepath.Join(dir, "PFS_result.txt")))
}

func TestFileSink_ConcurrentEmit(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, "os.txt", "pfs.txt")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Emit(survival.Comparison{
				Cancer: "LUAD", Taxon: fmt.Sprintf("t%02d", i), Endpoint: survival.EndpointOS,
				PValue: 1, Enriched: survival.GroupZero,
			}))
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	lines := readLines(t, filepath.Join(dir, "os.txt"))
	require.Len(t, lines, 50)
	sort.Strings(lines)
	assert.Equal(t, "LUAD,t00,OS_p=1.0,Enriched=Zero", lines[0])
}

func TestFileSink_EmitAfterClose(t *testing.T) {
	s, err := NewFileSink(t.TempDir(), "a.txt", "b.txt")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = s.Emit(survival.Comparison{Endpoint: survival.EndpointOS})
	assert.Error(t, err)
}

func TestFileSink_MissingDir(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "nope"), "a.txt", "b.txt")
	require.Error(t, err)
	assert.Equal(t, errors.CodeIOError, errors.GetCode(err))
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.Emit(survival.Comparison{Cancer: "A", Taxon: "x", Endpoint: survival.EndpointOS, PValue: 0.1, Enriched: survival.GroupZero}))
	require.NoError(t, s.Emit(survival.Comparison{Cancer: "A", Taxon: "x", Endpoint: survival.EndpointPFS, PValue: 0.2, Enriched: survival.GroupNonzero}))

	assert.Len(t, s.Records(), 2)
	assert.Equal(t, []string{"A,x,PFS_p=0.2,Enriched=Nonzero"}, s.Lines(survival.EndpointPFS))
	assert.NoError(t, s.Close())
}
