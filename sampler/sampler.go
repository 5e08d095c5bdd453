// Package sampler - Length-bucketed batch sampling for padding-free caption
// batches.
package sampler

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// LengthLister is the minimal dataset view the sampler needs: random access
// to per-example caption lengths.
type LengthLister interface {
	// Len reports the total number of examples.
	Len() int
	// CaptionLength reports the token count of example i, sentinels
	// included.
	CaptionLength(i int) (int, error)
}

// EmptyBucketError reports a request for a caption length with zero examples.
// BuildIndex never produces such buckets, so seeing one is an internal
// consistency fault.
type EmptyBucketError struct {
	Length int
}

func (e *EmptyBucketError) Error() string {
	return fmt.Sprintf("no examples with caption length %d", e.Length)
}

// LengthIndex buckets dataset indices by caption length. It is built once at
// dataset-load time and never mutated afterwards, so concurrent sampling
// reads need no locking.
type LengthIndex struct {
	buckets map[int][]int
	lengths []int // sorted, non-empty buckets only
	total   int
}

// BuildIndex scans every example once and assigns its dataset index to the
// bucket for its caption length. The buckets partition the full index range:
// every index lands in exactly one bucket.
func BuildIndex(ds LengthLister) (*LengthIndex, error) {
	buckets := make(map[int][]int)
	n := ds.Len()
	for i := 0; i < n; i++ {
		length, err := ds.CaptionLength(i)
		if err != nil {
			return nil, errors.Wrapf(err, "caption length of example %d", i)
		}
		if length <= 0 {
			return nil, errors.Errorf("example %d has non-positive caption length %d", i, length)
		}
		buckets[length] = append(buckets[length], i)
	}

	lengths := make([]int, 0, len(buckets))
	for length := range buckets {
		lengths = append(lengths, length)
	}
	sort.Ints(lengths)

	return &LengthIndex{buckets: buckets, lengths: lengths, total: n}, nil
}

// Len reports the total number of indexed examples.
func (x *LengthIndex) Len() int { return x.total }

// Lengths returns the caption lengths with at least one example, ascending.
func (x *LengthIndex) Lengths() []int {
	out := make([]int, len(x.lengths))
	copy(out, x.lengths)
	return out
}

// Bucket returns the dataset indices whose caption has the given length.
func (x *LengthIndex) Bucket(length int) ([]int, error) {
	bucket, ok := x.buckets[length]
	if !ok || len(bucket) == 0 {
		return nil, &EmptyBucketError{Length: length}
	}
	out := make([]int, len(bucket))
	copy(out, bucket)
	return out, nil
}

// Sampler draws same-length batches from a LengthIndex. Captions of equal
// length stack into a tensor without padding, which keeps learned padding
// tokens out of alignment scores and shape masks out of the evaluation path.
type Sampler struct {
	index *LengthIndex
	rng   *rand.Rand
}

// New creates a sampler over the given index. The seed makes sampling
// reproducible.
func New(index *LengthIndex, seed int64) *Sampler {
	return &Sampler{index: index, rng: rand.New(rand.NewSource(seed))}
}

// SampleBatch picks one caption length uniformly at random among lengths with
// at least one example, then draws batchSize indices without replacement from
// that bucket. A bucket with fewer than batchSize members yields all of them;
// short batches are the caller's concern, never dropped here.
func (s *Sampler) SampleBatch(batchSize int) ([]int, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(s.index.lengths) == 0 {
		return nil, errors.New("index has no examples")
	}

	length := s.index.lengths[s.rng.Intn(len(s.index.lengths))]
	bucket, err := s.index.Bucket(length)
	if err != nil {
		return nil, err
	}

	s.rng.Shuffle(len(bucket), func(i, j int) {
		bucket[i], bucket[j] = bucket[j], bucket[i]
	})
	if batchSize < len(bucket) {
		bucket = bucket[:batchSize]
	}
	return bucket, nil
}
