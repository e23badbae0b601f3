// elAssemble: a high-performance tool for correcting sequencing reads
// and simplifying de Bruijn assembly graphs.
// Copyright (c) 2021-2023 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elassemble/blob/master/LICENSE.txt>.

package graph

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"gonum.org/v1/gonum/dsp/fourier"
)

// A PairInfo records that paired reads connect two edges at an
// estimated distance with the given weight and variance.
type PairInfo struct {
	First    EdgeID
	Second   EdgeID
	Distance float64
	Weight   float64
	Variance float64
}

// A PairedInfoIndex buckets PairInfo records by edge pair.
type PairedInfoIndex struct {
	buckets map[[2]EdgeID][]PairInfo
}

// NewPairedInfoIndex returns an empty index.
func NewPairedInfoIndex() *PairedInfoIndex {
	return &PairedInfoIndex{buckets: make(map[[2]EdgeID][]PairInfo)}
}

// AddPairInfo adds one record.
func (idx *PairedInfoIndex) AddPairInfo(info PairInfo) {
	key := [2]EdgeID{info.First, info.Second}
	idx.buckets[key] = append(idx.buckets[key], info)
}

// Get returns the records for an edge pair, sorted by distance.
func (idx *PairedInfoIndex) Get(first, second EdgeID) []PairInfo {
	bucket := append([]PairInfo(nil), idx.buckets[[2]EdgeID{first, second}]...)
	sort.Slice(bucket, func(i, j int) bool { return bucket[i].Distance < bucket[j].Distance })
	return bucket
}

// Pairs returns all edge pairs in the index, in deterministic order.
func (idx *PairedInfoIndex) Pairs() [][2]EdgeID {
	pairs := make([][2]EdgeID, 0, len(idx.buckets))
	for key := range idx.buckets {
		pairs = append(pairs, key)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

const (
	// peakCutoff is the number of low-frequency Fourier components
	// kept when smoothing a distance histogram.
	peakCutoff = 3
	// minimalPeakPoints is the minimal number of points in a cluster
	// to be considered consistent.
	minimalPeakPoints = 2
	// peakWeight is the weight assigned to an accepted peak distance.
	peakWeight = 10000
)

// A PeakFinder locates peaks in a weighted distance histogram by FFT
// smoothing: the histogram is transformed, every coefficient beyond
// the cutoff is dropped, and local maxima of the reconstruction are
// peaks.
type PeakFinder struct {
	data     []PairInfo
	min, max int
	smoothed []float64
}

// NewPeakFinder prepares a peak finder over data[begin:end].
func NewPeakFinder(data []PairInfo, begin, end int) *PeakFinder {
	window := data[begin:end]
	pf := &PeakFinder{data: window}
	pf.min = int(window[0].Distance)
	pf.max = int(window[len(window)-1].Distance) + 1
	return pf
}

// FFTSmoothing builds the smoothed histogram with the given frequency
// cutoff.
func (pf *PeakFinder) FFTSmoothing(cutoff int) {
	n := pf.max - pf.min
	if n < 1 {
		n = 1
	}
	hist := make([]float64, n)
	for _, info := range pf.data {
		i := int(info.Distance) - pf.min
		if i >= 0 && i < n {
			hist[i] += info.Weight
		}
	}
	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, hist)
	for i := cutoff; i < len(coeff); i++ {
		coeff[i] = 0
	}
	pf.smoothed = fft.Sequence(nil, coeff)
	for i := range pf.smoothed {
		pf.smoothed[i] /= float64(n)
	}
}

// IsPeak tells whether the given distance is a local maximum of the
// smoothed histogram.
func (pf *PeakFinder) IsPeak(distance int) bool {
	i := distance - pf.min
	if i < 0 || i >= len(pf.smoothed) {
		return false
	}
	value := pf.smoothed[i]
	if value <= 0 {
		return false
	}
	if i > 0 && pf.smoothed[i-1] > value {
		return false
	}
	if i < len(pf.smoothed)-1 && pf.smoothed[i+1] > value {
		return false
	}
	return true
}

// An AdvancedDistanceEstimator refines raw paired distance histograms
// into consistent distance estimates between edge pairs, using graph
// distances to anchor the peaks.
type AdvancedDistanceEstimator struct {
	g               *Graph
	histogram       *PairedInfoIndex
	insertSize      int
	readLength      int
	delta           int
	linkageDistance int
	maxDistance     int
}

// NewAdvancedDistanceEstimator returns an estimator over the given
// histogram index.
func NewAdvancedDistanceEstimator(g *Graph, histogram *PairedInfoIndex, insertSize, readLength, delta, linkageDistance, maxDistance int) *AdvancedDistanceEstimator {
	log.Println("Advanced Estimator started")
	return &AdvancedDistanceEstimator{
		g:               g,
		histogram:       histogram,
		insertSize:      insertSize,
		readLength:      readLength,
		delta:           delta,
		linkageDistance: linkageDistance,
		maxDistance:     maxDistance,
	}
}

// graphDistances enumerates the plausible distances between two edges
// along graph paths, bounded by the insert size.
func (est *AdvancedDistanceEstimator) graphDistances(first, second EdgeID) []int {
	g := est.g
	upperBound := est.insertSize + est.delta
	var result []int
	steps := 0
	var dfs func(v VertexID, length int)
	dfs = func(v VertexID, length int) {
		if steps++; steps > pathSearchVertexLimit {
			return
		}
		for _, e := range g.OutgoingEdges(v) {
			next := length + g.Length(e)
			if next > upperBound {
				continue
			}
			if e == second {
				result = append(result, length+g.Length(first))
			}
			dfs(g.EdgeEnd(e), next)
		}
	}
	dfs(g.EdgeEnd(first), 0)
	if first == second {
		result = append(result, 0)
	}
	sort.Ints(result)
	return result
}

// divideData splits a sorted histogram into clusters at gaps wider
// than the estimator's delta.
func (est *AdvancedDistanceEstimator) divideData(data []PairInfo) []int {
	boundaries := []int{0}
	for i := 1; i < len(data); i++ {
		if data[i].Distance-data[i-1].Distance > float64(est.delta) {
			boundaries = append(boundaries, i)
		}
	}
	return append(boundaries, len(data))
}

// estimateEdgePairDistances smooths each cluster of the histogram and
// keeps those graph distances that land on peaks.
func (est *AdvancedDistanceEstimator) estimateEdgePairDistances(data []PairInfo, forward []int) [][2]float64 {
	var result [][2]float64
	if len(data) <= 1 {
		return result
	}
	clusters := est.divideData(data)
	cur := 0
	for i := 0; i < len(clusters)-1; i++ {
		begin, end := clusters[i], clusters[i+1]
		if end-begin <= minimalPeakPoints {
			continue
		}
		for cur < len(forward) && float64(forward[cur]) < data[begin].Distance {
			cur++
		}
		pf := NewPeakFinder(data, begin, end)
		pf.FFTSmoothing(peakCutoff)
		for cur < len(forward) && float64(forward[cur]) <= data[end-1].Distance {
			if pf.IsPeak(forward[cur]) {
				result = append(result, [2]float64{float64(forward[cur]), peakWeight})
			}
			cur++
		}
	}
	return result
}

// clusterResult folds estimated peaks within the linkage distance into
// single PairInfo records with centered distance and variance.
func (est *AdvancedDistanceEstimator) clusterResult(first, second EdgeID, estimated [][2]float64) []PairInfo {
	var result []PairInfo
	for i := 0; i < len(estimated); i++ {
		left := i
		weight := estimated[i][1]
		for i+1 < len(estimated) && estimated[i+1][0]-estimated[i][0] <= float64(est.linkageDistance) {
			i++
			weight += estimated[i][1]
		}
		center := (estimated[left][0] + estimated[i][0]) * 0.5
		variance := (estimated[i][0] - estimated[left][0]) * 0.5
		result = append(result, PairInfo{
			First:    first,
			Second:   second,
			Distance: center,
			Weight:   weight,
			Variance: variance,
		})
	}
	return result
}

// Estimate refines the histogram into the result index.
func (est *AdvancedDistanceEstimator) Estimate(result *PairedInfoIndex) {
	for _, pair := range est.histogram.Pairs() {
		data := est.histogram.Get(pair[0], pair[1])
		if len(data) == 0 {
			continue
		}
		forward := est.graphDistances(pair[0], pair[1])
		estimated := est.estimateEdgePairDistances(data, forward)
		for _, info := range est.clusterResult(pair[0], pair[1], estimated) {
			result.AddPairInfo(info)
		}
	}
}
