package recommend

import (
	"math"
	"testing"
	"time"

	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/esindex"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

func TestLess_NaNSortsSmallest(t *testing.T) {
	if !less(math.NaN(), 1, "a", "b") {
		t.Error("NaN should sort before any real number")
	}
	if less(1, math.NaN(), "a", "b") {
		t.Error("a real number should not sort before NaN")
	}
}

func TestLess_EqualScoresTiebreakByID(t *testing.T) {
	if !less(1, 1, "a", "b") {
		t.Error("equal scores should order by ascending document id")
	}
	if less(1, 1, "b", "a") {
		t.Error("equal scores should order by ascending document id")
	}
}

func TestLess_BothNaNTiebreaksByID(t *testing.T) {
	if !less(math.NaN(), math.NaN(), "a", "b") {
		t.Error("two NaNs should still tiebreak by document id")
	}
}

func TestRerank_SortsDescendingByCompositeScore(t *testing.T) {
	engine := coi.New(config.CoIConfig{Threshold: 0.3, Horizon: 24 * time.Hour})
	now := time.Now()

	candidates := []esindex.Candidate{
		{DocumentID: "low", Embedding: []float32{0, 1}, MaxProbeSimilarity: 0.1, BM25Score: 1},
		{DocumentID: "high", Embedding: []float32{1, 0}, MaxProbeSimilarity: 0.9, BM25Score: 9},
	}
	w := Weights{CoI: 0, Vector: 0.5, Keyword: 0.5, Recency: 0}

	ranked := Rerank(candidates, nil, engine, w, now)
	if len(ranked) != 2 {
		t.Fatalf("len(ranked) = %d, want 2", len(ranked))
	}
	if ranked[0].Document.ID != "high" {
		t.Errorf("ranked[0].ID = %q, want %q (higher composite score first)", ranked[0].Document.ID, "high")
	}
}

func TestRerank_DegenerateBM25RangeYieldsZero(t *testing.T) {
	engine := coi.New(config.CoIConfig{Threshold: 0.3, Horizon: 24 * time.Hour})
	candidates := []esindex.Candidate{
		{DocumentID: "a", BM25Score: 5},
		{DocumentID: "b", BM25Score: 5},
	}
	norm := bm25Normalized(candidates)
	if norm[0] != 0 || norm[1] != 0 {
		t.Errorf("bm25Normalized() = %v, want all zero for a degenerate range", norm)
	}
}

func TestWeightsForState_ScalesCoIDuringWarming(t *testing.T) {
	w := Weights{CoI: 0.4, Vector: 0.3, Keyword: 0.2, Recency: 0.1}
	out := WeightsForState(w, coi.StateWarming, 0.5)
	if out.CoI != 0.2 {
		t.Errorf("CoI = %v, want 0.2", out.CoI)
	}
	if out.Vector != 0.3 {
		t.Errorf("Vector = %v, want unchanged 0.3", out.Vector)
	}
}

func TestWeightsForState_ZeroesCoIWhenUnknown(t *testing.T) {
	w := Weights{CoI: 0.4, Vector: 0.3, Keyword: 0.2, Recency: 0.1}
	out := WeightsForState(w, coi.StateUnknown, 0)
	if out.CoI != 0 {
		t.Errorf("CoI = %v, want 0", out.CoI)
	}
}

func TestWeightsForState_LeavesPersonalizedUntouched(t *testing.T) {
	w := Weights{CoI: 0.4, Vector: 0.3, Keyword: 0.2, Recency: 0.1}
	out := WeightsForState(w, coi.StatePersonalized, 1)
	if out != w {
		t.Errorf("WeightsForState() = %+v, want unchanged %+v", out, w)
	}
}

func TestFilterHistory_RemovesMatchingDocuments(t *testing.T) {
	ranked := []RankedDocument{
		{Document: model.Document{ID: "seen"}},
		{Document: model.Document{ID: "unseen"}},
	}
	out := FilterHistory(ranked, map[model.DocumentID]bool{"seen": true})
	if len(out) != 1 || out[0].Document.ID != "unseen" {
		t.Errorf("FilterHistory() = %+v, want only %q", out, "unseen")
	}
}

func TestFilterHistory_EmptyHistoryIsNoOp(t *testing.T) {
	ranked := []RankedDocument{{Document: model.Document{ID: "a"}}}
	out := FilterHistory(ranked, nil)
	if len(out) != 1 {
		t.Errorf("len(out) = %d, want 1", len(out))
	}
}

func TestPaginate_ReturnsRequestedPage(t *testing.T) {
	ranked := make([]RankedDocument, 10)
	for i := range ranked {
		ranked[i] = RankedDocument{Document: model.Document{ID: model.DocumentID(string(rune('a' + i)))}}
	}
	page := Paginate(ranked, 1, 3, 100)
	if len(page) != 3 {
		t.Fatalf("len(page) = %d, want 3", len(page))
	}
	if page[0].Document.ID != ranked[3].Document.ID {
		t.Errorf("page[0] = %v, want ranked[3]", page[0].Document.ID)
	}
}

func TestPaginate_CapsAtMaxPageSize(t *testing.T) {
	ranked := make([]RankedDocument, 10)
	page := Paginate(ranked, 0, 100, 5)
	if len(page) != 5 {
		t.Errorf("len(page) = %d, want 5 (capped)", len(page))
	}
}

func TestPaginate_PastEndReturnsNil(t *testing.T) {
	ranked := make([]RankedDocument, 3)
	page := Paginate(ranked, 5, 10, 100)
	if page != nil {
		t.Errorf("Paginate() = %v, want nil past the end", page)
	}
}

func TestPaginate_ShortFinalPage(t *testing.T) {
	ranked := make([]RankedDocument, 7)
	page := Paginate(ranked, 1, 5, 100)
	if len(page) != 2 {
		t.Errorf("len(page) = %d, want 2 (short final page)", len(page))
	}
}

func TestOverfetchCount_ScalesWithPageAndFactor(t *testing.T) {
	k := OverfetchCount(0, 10, 2.0)
	if k != 20 {
		t.Errorf("OverfetchCount() = %d, want 20", k)
	}
}

func TestOverfetchCount_AccountsForPageOffset(t *testing.T) {
	k := OverfetchCount(2, 10, 1.5)
	if k != 45 {
		t.Errorf("OverfetchCount() = %d, want 45", k)
	}
}
