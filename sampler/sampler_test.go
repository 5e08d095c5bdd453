package sampler

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthList is an in-memory LengthLister for tests.
type lengthList []int

func (l lengthList) Len() int { return len(l) }

func (l lengthList) CaptionLength(i int) (int, error) { return l[i], nil }

// TestBuildIndexPartitionsIndices verifies the partition invariant: the union
// of bucket contents equals the full index range, buckets are pairwise
// disjoint, and every dataset index appears exactly once.
func TestBuildIndexPartitionsIndices(t *testing.T) {
	lengths := lengthList{5, 7, 5, 9, 7, 7, 5, 12, 5, 9}
	index, err := BuildIndex(lengths)
	require.NoError(t, err)

	assert.Equal(t, len(lengths), index.Len())

	seen := make(map[int]int)
	for _, length := range index.Lengths() {
		bucket, err := index.Bucket(length)
		require.NoError(t, err)
		require.NotEmpty(t, bucket)
		for _, idx := range bucket {
			seen[idx]++
			got, err := lengths.CaptionLength(idx)
			require.NoError(t, err)
			assert.Equal(t, length, got, "index %d landed in the wrong bucket", idx)
		}
	}

	require.Len(t, seen, len(lengths), "union of buckets must cover all indices")
	for idx, count := range seen {
		assert.Equal(t, 1, count, "index %d appears in %d buckets", idx, count)
	}
}

func TestBuildIndexRejectsNonPositiveLength(t *testing.T) {
	_, err := BuildIndex(lengthList{5, 0, 5})
	require.Error(t, err)
}

// TestSampleBatchShortBucket verifies that a bucket with fewer members than
// the batch size yields exactly its members, with no padding and no error.
func TestSampleBatchShortBucket(t *testing.T) {
	// One bucket only, 5 members, so sampling cannot pick anything else.
	index, err := BuildIndex(lengthList{4, 4, 4, 4, 4})
	require.NoError(t, err)

	batch, err := New(index, 1).SampleBatch(8)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	sort.Ints(batch)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, batch)
}

func TestSampleBatchDrawsWithoutReplacement(t *testing.T) {
	index, err := BuildIndex(lengthList{6, 6, 6, 6, 6, 6, 6, 6})
	require.NoError(t, err)

	s := New(index, 7)
	for trial := 0; trial < 20; trial++ {
		batch, err := s.SampleBatch(4)
		require.NoError(t, err)
		require.Len(t, batch, 4)

		unique := make(map[int]bool)
		for _, idx := range batch {
			assert.False(t, unique[idx], "index %d drawn twice in one batch", idx)
			unique[idx] = true
		}
	}
}

func TestSampleBatchSingleLengthPerBatch(t *testing.T) {
	lengths := lengthList{3, 8, 3, 8, 3, 8, 3, 8, 3, 8}
	index, err := BuildIndex(lengths)
	require.NoError(t, err)

	s := New(index, 42)
	for trial := 0; trial < 20; trial++ {
		batch, err := s.SampleBatch(3)
		require.NoError(t, err)
		require.NotEmpty(t, batch)

		first, err := lengths.CaptionLength(batch[0])
		require.NoError(t, err)
		for _, idx := range batch[1:] {
			got, err := lengths.CaptionLength(idx)
			require.NoError(t, err)
			assert.Equal(t, first, got, "batch mixes caption lengths")
		}
	}
}

func TestSampleBatchDeterministicWhenSeeded(t *testing.T) {
	lengths := lengthList{5, 7, 5, 9, 7, 7, 5, 12, 5, 9}
	index, err := BuildIndex(lengths)
	require.NoError(t, err)

	a, err := New(index, 99).SampleBatch(4)
	require.NoError(t, err)
	b, err := New(index, 99).SampleBatch(4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBucketMissingLength(t *testing.T) {
	index, err := BuildIndex(lengthList{5, 5})
	require.NoError(t, err)

	_, err = index.Bucket(6)
	var empty *EmptyBucketError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 6, empty.Length)
}

func TestSampleBatchRejectsBadBatchSize(t *testing.T) {
	index, err := BuildIndex(lengthList{5})
	require.NoError(t, err)

	_, err = New(index, 1).SampleBatch(0)
	require.Error(t, err)
}
