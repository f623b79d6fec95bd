package orchestrator

import (
	"math"
	"sort"

	"github.com/adloophq/adloop-backend/internal/domain"
)

// CosineSimilarity returns the cosine of the angle between two vectors, or 0
// when either has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// MeanEmbedding averages vectors elementwise. Vectors whose length differs
// from the first are skipped. Returns nil for empty input.
func MeanEmbedding(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	mean := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			mean[i] += x
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range mean {
		mean[i] /= float64(n)
	}
	return mean
}

type scoredAsset struct {
	asset *domain.Asset
	score float64
}

// FilterAssetsBySimilarity keeps the topFraction of assets most similar to
// target, never fewer than one. Assets without an embedding are dropped.
func FilterAssetsBySimilarity(target []float64, assets []*domain.Asset, topFraction float64) []*domain.Asset {
	scored := make([]scoredAsset, 0, len(assets))
	for _, a := range assets {
		if len(a.Embedding) == 0 || len(a.Embedding) != len(target) {
			continue
		}
		scored = append(scored, scoredAsset{asset: a, score: CosineSimilarity(target, a.Embedding)})
	}
	if len(scored) == 0 {
		return nil
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	keep := int(float64(len(scored)) * topFraction)
	if keep < 1 {
		keep = 1
	}
	out := make([]*domain.Asset, 0, keep)
	for _, s := range scored[:keep] {
		out = append(out, s.asset)
	}
	return out
}

// FilterAssetsByIteration narrows the asset pool as iterations progress:
// iteration 0 keeps everything, iteration n keeps the top 1/(n+1) of each
// category. Each category is ranked against its winner-mean embedding from
// categoryEmbeddings, falling back to the global target.
func FilterAssetsByIteration(target []float64, assets []*domain.Asset, iteration int, categoryEmbeddings map[domain.AssetCategory][]float64) []*domain.Asset {
	if iteration == 0 {
		return assets
	}
	fraction := 1.0 / float64(iteration+1)

	byCategory := GroupAssetsByCategory(assets)
	categories := sortedCategories(byCategory)

	var out []*domain.Asset
	for _, cat := range categories {
		embedding := target
		if ce, ok := categoryEmbeddings[cat]; ok && len(ce) > 0 {
			embedding = ce
		}
		out = append(out, FilterAssetsBySimilarity(embedding, byCategory[cat], fraction)...)
	}
	return out
}

// CategoryEmbeddingsFromWinners averages the embeddings of winning images'
// source assets per category.
func CategoryEmbeddingsFromWinners(winnerAssets []*domain.Asset) map[domain.AssetCategory][]float64 {
	grouped := make(map[domain.AssetCategory][][]float64)
	for _, a := range winnerAssets {
		if len(a.Embedding) == 0 {
			continue
		}
		grouped[a.Category] = append(grouped[a.Category], a.Embedding)
	}

	out := make(map[domain.AssetCategory][]float64, len(grouped))
	for cat, embeddings := range grouped {
		if mean := MeanEmbedding(embeddings); mean != nil {
			out[cat] = mean
		}
	}
	return out
}

func sortedCategories[T any](m map[domain.AssetCategory]T) []domain.AssetCategory {
	cats := make([]domain.AssetCategory, 0, len(m))
	for c := range m {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}
