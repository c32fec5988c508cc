package utils

import (
	"runtime"
	"sync"
)

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucket(kDim int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(kDim)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(kDim int) (tryCount, bucketNum, min, max int) {
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*kDim) / float64(pm.MaxIndex))
	if bucketNum >= pm.ParallelDegree {
		bucketNum = pm.ParallelDegree - 1
	}
	for !(pm.Partitions[bucketNum][0] <= kDim && pm.Partitions[bucketNum][1] > kDim) {
		if pm.Partitions[bucketNum][0] > kDim {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into c.ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

// ParallelDegree picks the number of go routines used for a loop over
// maxIndex items: ProcLimit if set, otherwise the number of CPUs, never more
// than the number of items.
func ParallelDegree(ProcLimit, maxIndex int) (np int) {
	if ProcLimit > 0 {
		np = ProcLimit
	} else {
		np = runtime.NumCPU()
	}
	if np > maxIndex {
		np = maxIndex
	}
	if np < 1 {
		np = 1
	}
	return
}

// ParallelFor runs kernel over [0, N) split into ProcLimit chunks (see
// ParallelDegree). Each call receives its chunk number and half open range.
func ParallelFor(ProcLimit, N int, kernel func(np, kMin, kMax int)) {
	if N <= 0 {
		return
	}
	var (
		pm = NewPartitionMap(ParallelDegree(ProcLimit, N), N)
		wg = sync.WaitGroup{}
	)
	if pm.ParallelDegree == 1 {
		kernel(0, 0, N)
		return
	}
	for np := 0; np < pm.ParallelDegree; np++ {
		wg.Add(1)
		go func(np int) {
			kMin, kMax := pm.GetBucketRange(np)
			kernel(np, kMin, kMax)
			wg.Done()
		}(np)
	}
	wg.Wait()
}

// ParallelReduceInt sums the per chunk partial results of kernel.
func ParallelReduceInt(ProcLimit, N int, kernel func(kMin, kMax int) int) (sum int) {
	if N <= 0 {
		return
	}
	partial := make([]int, ParallelDegree(ProcLimit, N))
	ParallelFor(ProcLimit, N, func(np, kMin, kMax int) {
		partial[np] = kernel(kMin, kMax)
	})
	for _, p := range partial {
		sum += p
	}
	return
}

// ParallelAll reports whether pred holds for every index, the boolean AND
// reduction used by verification loops.
func ParallelAll(ProcLimit, N int, pred func(i int) bool) bool {
	failed := ParallelReduceInt(ProcLimit, N, func(kMin, kMax int) (n int) {
		for i := kMin; i < kMax; i++ {
			if !pred(i) {
				n++
			}
		}
		return
	})
	return failed == 0
}

// ExclusiveScan computes the exclusive prefix sum of the 0/1 flags given by
// pred and calls emit(i, pos) for every i where pred holds, pos being the
// number of such indices before i. Chunks are counted in parallel, then
// offset and written in parallel, so pos is increasing in i. It returns the
// total count.
func ExclusiveScan(ProcLimit, N int, pred func(i int) bool, emit func(i, pos int)) (total int) {
	if N <= 0 {
		return
	}
	var (
		np     = ParallelDegree(ProcLimit, N)
		counts = make([]int, np)
		offset = make([]int, np)
	)
	ParallelFor(np, N, func(p, kMin, kMax int) {
		for i := kMin; i < kMax; i++ {
			if pred(i) {
				counts[p]++
			}
		}
	})
	for p := 0; p < np; p++ {
		offset[p] = total
		total += counts[p]
	}
	ParallelFor(np, N, func(p, kMin, kMax int) {
		pos := offset[p]
		for i := kMin; i < kMax; i++ {
			if pred(i) {
				emit(i, pos)
				pos++
			}
		}
	})
	return
}
