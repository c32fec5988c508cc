package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // Test PartitionMap
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Test inverted bucket probe - find bucket that contains index (efficiently)
		for maxIndex := 10; maxIndex < 1000; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
	}
}

func TestParallelKernels(t *testing.T) {
	{ // Test ParallelFor covers every index exactly once
		N := 1003
		hits := make([]int, N)
		ParallelFor(7, N, func(np, kMin, kMax int) {
			for i := kMin; i < kMax; i++ {
				hits[i]++
			}
		})
		for i := range hits {
			assert.Equal(t, 1, hits[i])
		}
	}
	{ // Test reductions
		N := 500
		sum := ParallelReduceInt(4, N, func(kMin, kMax int) (s int) {
			for i := kMin; i < kMax; i++ {
				s += i
			}
			return
		})
		assert.Equal(t, N*(N-1)/2, sum)
		assert.True(t, ParallelAll(4, N, func(i int) bool { return i < N }))
		assert.False(t, ParallelAll(4, N, func(i int) bool { return i != 321 }))
		assert.Equal(t, 0, ParallelReduceInt(4, 0, func(kMin, kMax int) int { return 1 }))
	}
	{ // Test the scan emits increasing, dense positions in source order
		N := 997
		pred := func(i int) bool { return i%3 == 1 }
		out := make([]int, N)
		total := ExclusiveScan(6, N, pred, func(i, pos int) {
			out[pos] = i
		})
		out = out[:total]
		assert.Equal(t, (N+1)/3, total)
		for k := 1; k < len(out); k++ {
			assert.Less(t, out[k-1], out[k])
		}
		for _, i := range out {
			assert.True(t, pred(i))
		}
	}
	{ // Test degree selection
		assert.Equal(t, 1, ParallelDegree(8, 1))
		assert.Equal(t, 3, ParallelDegree(3, 100))
		assert.Equal(t, 1, ParallelDegree(3, 0))
	}
}
