package orchestrator

import (
	"sort"

	"github.com/google/uuid"

	"github.com/adloophq/adloop-backend/internal/domain"
)

// ScoreSignals are the engagement signals one image's composite score is
// computed from.
type ScoreSignals struct {
	InteractionRate float64
	Interactions    int
	ConversionValue float64
	ConversionRate  float64
	CTR             float64
}

// SignalsFromMetrics derives engagement signals from stored raw metrics.
// Interaction rate and conversion value are estimated: interactions track
// clicks roughly 1:1, rate runs about 1.3x CTR, and a conversion is worth
// $40 on average.
func SignalsFromMetrics(m *domain.ImageMetrics) ScoreSignals {
	return ScoreSignals{
		InteractionRate: m.CTR * 1.3,
		Interactions:    m.Clicks,
		ConversionValue: float64(m.Conversions) * 40,
		ConversionRate:  m.ConversionRate,
		CTR:             m.CTR,
	}
}

// CompositeScore weighs the signals into a single ranking score:
// interactions 40%, conversion value 30%, conversion rate 20%, CTR 10%.
func CompositeScore(s ScoreSignals) float64 {
	interactionScore := s.InteractionRate*0.6 + (float64(s.Interactions)/1000.0)*0.4

	conversionValueScore := s.ConversionValue / 1000.0
	if conversionValueScore > 1.0 {
		conversionValueScore = 1.0
	}

	ctrScore := s.CTR * 10
	if ctrScore > 1.0 {
		ctrScore = 1.0
	}

	return interactionScore*0.4 +
		conversionValueScore*0.3 +
		s.ConversionRate*0.2 +
		ctrScore*0.1
}

// ScoredImage pairs an image id with its signals for ranking.
type ScoredImage struct {
	ImageID uuid.UUID
	Signals ScoreSignals
}

// SelectTopImagesByScore splits images into the topN winners and the rest,
// ranked by composite score descending. Ties keep input order.
func SelectTopImagesByScore(images []ScoredImage, topN int) (winners []uuid.UUID, others []uuid.UUID) {
	type scored struct {
		id    uuid.UUID
		score float64
	}
	rows := make([]scored, 0, len(images))
	for _, img := range images {
		rows = append(rows, scored{id: img.ImageID, score: CompositeScore(img.Signals)})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].score > rows[j].score })

	if topN > len(rows) {
		topN = len(rows)
	}
	if topN < 0 {
		topN = 0
	}
	for _, r := range rows[:topN] {
		winners = append(winners, r.id)
	}
	for _, r := range rows[topN:] {
		others = append(others, r.id)
	}
	return winners, others
}
