package lbph

import (
	"sort"

	"github.com/coder/hnsw"
)

const (
	// hnswMaxNeighbors is the M parameter of the graph.
	hnswMaxNeighbors = 16
	// hnswEfSearch is the candidate list size used during search.
	hnswEfSearch = 64
	// hnswCandidates is how many graph neighbours are re-ranked exactly.
	hnswCandidates = 16
)

// index finds the training histogram nearest to a query. Small sets are
// scanned exhaustively; larger ones go through an HNSW graph whose
// candidates are re-ranked with the exact distance.
type index struct {
	histograms [][]float32
	labels     []int
	graph      *hnsw.Graph[int]
}

func newIndex(histograms [][]float32, labels []int, minGraphSize int) *index {
	idx := &index{histograms: histograms, labels: labels}
	if minGraphSize > 0 && len(histograms) >= minGraphSize {
		g := hnsw.NewGraph[int]()
		g.M = hnswMaxNeighbors
		g.Ml = 1.0 / float64(hnswMaxNeighbors)
		g.EfSearch = hnswEfSearch
		g.Distance = ChiSquare
		for i, h := range histograms {
			g.Add(hnsw.MakeNode(i, h))
		}
		idx.graph = g
	}
	return idx
}

// nearest returns the label and distance of the closest histogram.
func (idx *index) nearest(query []float32) (int, float32) {
	if idx.graph != nil {
		if label, dist, ok := idx.nearestGraph(query); ok {
			return label, dist
		}
	}
	return idx.nearestScan(query)
}

func (idx *index) nearestScan(query []float32) (int, float32) {
	best, bestDist := -1, float32(0)
	for i, h := range idx.histograms {
		d := ChiSquare(query, h)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return idx.labels[best], bestDist
}

func (idx *index) nearestGraph(query []float32) (int, float32, bool) {
	neighbors := idx.graph.Search(query, hnswCandidates)
	if len(neighbors) == 0 {
		return 0, 0, false
	}

	type candidate struct {
		key  int
		dist float32
	}
	candidates := make([]candidate, len(neighbors))
	for i, n := range neighbors {
		candidates[i] = candidate{n.Key, ChiSquare(query, idx.histograms[n.Key])}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].key < candidates[j].key
	})
	return idx.labels[candidates[0].key], candidates[0].dist, true
}

func (idx *index) len() int {
	return len(idx.histograms)
}
