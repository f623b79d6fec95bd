package orchestrator

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/adloophq/adloop-backend/internal/domain"
)

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
		{"length mismatch", []float64{1, 2}, []float64{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CosineSimilarity(tc.a, tc.b)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("CosineSimilarity(%v, %v)=%v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestMeanEmbedding(t *testing.T) {
	got := MeanEmbedding([][]float64{{1, 2}, {3, 4}})
	want := []float64{2, 3}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("MeanEmbedding: want=%v got=%v", want, got)
	}

	// Mismatched dims are skipped, not averaged in.
	got = MeanEmbedding([][]float64{{1, 2}, {1, 2, 3}, {3, 4}})
	if got[0] != 2 || got[1] != 3 {
		t.Fatalf("MeanEmbedding with mismatched dim: want=[2 3] got=%v", got)
	}

	if MeanEmbedding(nil) != nil {
		t.Fatalf("MeanEmbedding(nil) should be nil")
	}
}

func embeddedAsset(cat domain.AssetCategory, embedding []float64) *domain.Asset {
	return &domain.Asset{
		ID:        uuid.New(),
		Name:      string(cat),
		Category:  cat,
		Embedding: datatypes.JSONSlice[float64](embedding),
	}
}

func TestFilterAssetsBySimilarity(t *testing.T) {
	target := []float64{1, 0}
	close1 := embeddedAsset(domain.CategoryProduct, []float64{1, 0.1})
	close2 := embeddedAsset(domain.CategoryProduct, []float64{1, 0.5})
	far := embeddedAsset(domain.CategoryProduct, []float64{0, 1})
	noEmbedding := embeddedAsset(domain.CategoryProduct, nil)

	got := FilterAssetsBySimilarity(target, []*domain.Asset{far, close2, close1, noEmbedding}, 0.5)
	if len(got) != 1 {
		t.Fatalf("keep fraction 0.5 of 3 scoreable: want=1 got=%d", len(got))
	}
	if got[0].ID != close1.ID {
		t.Fatalf("most similar should be kept: want=%s got=%s", close1.ID, got[0].ID)
	}

	// Never drops below one asset.
	got = FilterAssetsBySimilarity(target, []*domain.Asset{far}, 0.1)
	if len(got) != 1 {
		t.Fatalf("min-one floor: want=1 got=%d", len(got))
	}

	// Nothing scoreable at all.
	if got := FilterAssetsBySimilarity(target, []*domain.Asset{noEmbedding}, 0.5); got != nil {
		t.Fatalf("no scoreable assets: want=nil got=%v", got)
	}
}

func TestFilterAssetsByIteration(t *testing.T) {
	target := []float64{1, 0}
	assets := []*domain.Asset{
		embeddedAsset(domain.CategoryBackground, []float64{1, 0}),
		embeddedAsset(domain.CategoryBackground, []float64{0.9, 0.1}),
		embeddedAsset(domain.CategoryBackground, []float64{0, 1}),
		embeddedAsset(domain.CategoryProduct, []float64{1, 0.2}),
		embeddedAsset(domain.CategoryProduct, []float64{0.2, 1}),
	}

	// Iteration 0 passes everything through untouched.
	got := FilterAssetsByIteration(target, assets, 0, nil)
	if len(got) != len(assets) {
		t.Fatalf("iteration 0: want=%d got=%d", len(assets), len(got))
	}

	// Iteration 1 keeps 1/2 per category: 1 of 3 backgrounds, 1 of 2 products.
	got = FilterAssetsByIteration(target, assets, 1, nil)
	if len(got) != 2 {
		t.Fatalf("iteration 1: want=2 got=%d", len(got))
	}
	byCat := GroupAssetsByCategory(got)
	if len(byCat[domain.CategoryBackground]) != 1 || len(byCat[domain.CategoryProduct]) != 1 {
		t.Fatalf("per-category keep counts wrong: %v", byCat)
	}

	// Iteration 2 keeps 1/3 per category, min one each.
	got = FilterAssetsByIteration(target, assets, 2, nil)
	if len(got) != 2 {
		t.Fatalf("iteration 2: want=2 got=%d", len(got))
	}
}

func TestFilterAssetsByIterationPrefersCategoryEmbedding(t *testing.T) {
	// Global target favors the x axis, but the category embedding points
	// along y, so the y-aligned background must win.
	target := []float64{1, 0}
	xAligned := embeddedAsset(domain.CategoryBackground, []float64{1, 0})
	yAligned := embeddedAsset(domain.CategoryBackground, []float64{0, 1})

	catEmb := map[domain.AssetCategory][]float64{
		domain.CategoryBackground: {0, 1},
	}

	got := FilterAssetsByIteration(target, []*domain.Asset{xAligned, yAligned}, 1, catEmb)
	if len(got) != 1 || got[0].ID != yAligned.ID {
		t.Fatalf("category embedding should drive ranking: got=%v", got)
	}
}

func TestCategoryEmbeddingsFromWinners(t *testing.T) {
	winners := []*domain.Asset{
		embeddedAsset(domain.CategoryProduct, []float64{1, 0}),
		embeddedAsset(domain.CategoryProduct, []float64{0, 1}),
		embeddedAsset(domain.CategoryLogo, []float64{2, 2}),
		embeddedAsset(domain.CategoryModel, nil),
	}

	got := CategoryEmbeddingsFromWinners(winners)
	if len(got) != 2 {
		t.Fatalf("want 2 categories, got %d", len(got))
	}
	prod := got[domain.CategoryProduct]
	if prod[0] != 0.5 || prod[1] != 0.5 {
		t.Fatalf("product mean: want=[0.5 0.5] got=%v", prod)
	}
	if _, ok := got[domain.CategoryModel]; ok {
		t.Fatalf("category with no embeddings must be absent")
	}
}
