package orchestrator

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
)

// AssetSet holds at most one asset per category, the unit one image is
// generated from.
type AssetSet struct {
	Assets map[domain.AssetCategory]*domain.Asset
}

// AssetIDs returns the ids of every asset in the set, category-sorted.
func (s AssetSet) AssetIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.Assets))
	for _, cat := range sortedCategories(s.Assets) {
		out = append(out, s.Assets[cat].ID)
	}
	return out
}

// AssetList returns the set's assets category-sorted.
func (s AssetSet) AssetList() []*domain.Asset {
	out := make([]*domain.Asset, 0, len(s.Assets))
	for _, cat := range sortedCategories(s.Assets) {
		out = append(out, s.Assets[cat])
	}
	return out
}

// GroupAssetsByCategory buckets assets by category, preserving input order
// within a bucket.
func GroupAssetsByCategory(assets []*domain.Asset) map[domain.AssetCategory][]*domain.Asset {
	grouped := make(map[domain.AssetCategory][]*domain.Asset)
	for _, a := range assets {
		grouped[a.Category] = append(grouped[a.Category], a)
	}
	return grouped
}

// SelectAssetSets builds numSets sets with one random asset per category,
// preferring assets not yet used. When a category runs out its used tracking
// resets, so small pools rotate rather than starve.
func SelectAssetSets(rng *rand.Rand, assets []*domain.Asset, numSets int, usedAssetIDs map[uuid.UUID]bool) []AssetSet {
	byCategory := GroupAssetsByCategory(assets)
	if len(byCategory) == 0 || numSets <= 0 {
		return nil
	}
	categories := sortedCategories(byCategory)

	usedPerCategory := make(map[domain.AssetCategory]map[uuid.UUID]bool, len(categories))
	for _, cat := range categories {
		usedPerCategory[cat] = make(map[uuid.UUID]bool)
		for _, a := range byCategory[cat] {
			if usedAssetIDs[a.ID] {
				usedPerCategory[cat][a.ID] = true
			}
		}
	}

	sets := make([]AssetSet, 0, numSets)
	for i := 0; i < numSets; i++ {
		selected := make(map[domain.AssetCategory]*domain.Asset, len(categories))

		for _, cat := range categories {
			pool := byCategory[cat]
			used := usedPerCategory[cat]

			available := make([]*domain.Asset, 0, len(pool))
			for _, a := range pool {
				if !used[a.ID] {
					available = append(available, a)
				}
			}
			if len(available) == 0 {
				usedPerCategory[cat] = make(map[uuid.UUID]bool)
				used = usedPerCategory[cat]
				available = pool
			}

			chosen := available[rng.Intn(len(available))]
			selected[cat] = chosen
			used[chosen.ID] = true
		}

		if len(selected) > 0 {
			sets = append(sets, AssetSet{Assets: selected})
		}
	}
	return sets
}

// SplitBaseAndReferences picks the set's base image for the edit request and
// the remaining assets as references. The preferred base category (model by
// default) falls back to the first category present.
func SplitBaseAndReferences(set AssetSet, baseCategory domain.AssetCategory) (*domain.Asset, []*domain.Asset) {
	if len(set.Assets) == 0 {
		return nil, nil
	}

	base, ok := set.Assets[baseCategory]
	if !ok {
		baseCategory = sortedCategories(set.Assets)[0]
		base = set.Assets[baseCategory]
	}

	refs := make([]*domain.Asset, 0, len(set.Assets)-1)
	for _, cat := range sortedCategories(set.Assets) {
		if cat == baseCategory {
			continue
		}
		refs = append(refs, set.Assets[cat])
	}
	return base, refs
}

// BuildGenerationPrompt composes the full edit prompt for one asset set:
// the campaign prompt, the fixed editing instructions, and labeled reference
// asset lines so the model knows which reference carries which element.
func BuildGenerationPrompt(basePrompt string, base *domain.Asset, refs []*domain.Asset) string {
	prompt := strings.TrimSpace(basePrompt)
	if prompt != "" && !strings.HasSuffix(prompt, ".") {
		prompt += "."
	}

	baseLabel := base.Name
	if baseLabel == "" {
		baseLabel = base.ID.String()[:8]
	}

	detail := " Edit the input image into an instagram post for a fashion brand. " +
		"It should be based on a ultra realistic photograph with a logo. " +
		"Keep the base person's identity and body shape from the input image but play with pose and direction. " +
		"Respect realistic lighting, shadows, and fabric textures. " +
		fmt.Sprintf("The base image shows: %s = %s.", base.Category, baseLabel)

	refsText := ""
	if len(refs) > 0 {
		lines := make([]string, 0, len(refs))
		for _, ref := range refs {
			label := ref.Name
			if label == "" {
				label = ref.ID.String()[:8]
			}
			lines = append(lines, fmt.Sprintf("%s = %s", ref.Category, label))
		}
		refsText = " Use the reference images to apply the following items accurately: " +
			strings.Join(lines, ", ") + "."
	}

	return prompt + detail + refsText
}
