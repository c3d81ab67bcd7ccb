package coi

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

func testConfig() config.CoIConfig {
	return config.CoIConfig{
		ShiftFactor:     0.1,
		Threshold:       0.3,
		MinPositiveCoIs: 3,
		MinNegativeCoIs: 3,
		Horizon:         30 * 24 * time.Hour,
		Gamma:           0.5,
		Penalty:         []float64{1.0, 0.9, 0.8},
	}
}

func TestSimilarity_ZeroVectorYieldsOne(t *testing.T) {
	if sim := Similarity([]float32{0, 0, 0}, []float32{1, 2, 3}); sim != 1 {
		t.Errorf("Similarity() = %v, want 1", sim)
	}
	if sim := Similarity([]float32{0, 0}, []float32{0, 0}); sim != 1 {
		t.Errorf("Similarity() = %v, want 1", sim)
	}
}

func TestSimilarity_IdenticalVectorIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if sim := Similarity(v, v); sim < 0.999 {
		t.Errorf("Similarity(v, v) = %v, want ~1", sim)
	}
}

func TestSimilarity_OrthogonalIsZero(t *testing.T) {
	if sim := Similarity([]float32{1, 0}, []float32{0, 1}); sim > 1e-9 || sim < -1e-9 {
		t.Errorf("Similarity() = %v, want 0", sim)
	}
}

func TestSimilarity_ClampedWithinUnitRange(t *testing.T) {
	sim := Similarity([]float32{1, 1}, []float32{1, 1.0000001})
	if sim > 1 || sim < -1 {
		t.Errorf("Similarity() = %v, out of [-1,1]", sim)
	}
}

func TestAssign_NewCoIWhenEmpty(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	out := e.Assign(nil, []float32{1, 0, 0}, now)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].ViewCount != 1 {
		t.Errorf("ViewCount = %d, want 1", out[0].ViewCount)
	}
}

func TestAssign_UpdatesNearbyCoIInPlace(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	cois := []model.CoI{{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 1, LastView: now, Created: now}}

	updated := e.Assign(cois, []float32{0.99, 0.01}, now.Add(time.Hour))
	if len(updated) != 1 {
		t.Fatalf("len(updated) = %d, want 1 (should update existing CoI)", len(updated))
	}
	if updated[0].ViewCount != 2 {
		t.Errorf("ViewCount = %d, want 2", updated[0].ViewCount)
	}
}

func TestAssign_CreatesNewCoIBeyondThreshold(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	cois := []model.CoI{{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 1, LastView: now, Created: now}}

	updated := e.Assign(cois, []float32{0, 1}, now)
	if len(updated) != 2 {
		t.Fatalf("len(updated) = %d, want 2 (orthogonal observation should start a new CoI)", len(updated))
	}
}

func TestAssign_ResultStaysUnitLength(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	cois := []model.CoI{{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 1, LastView: now, Created: now}}
	updated := e.Assign(cois, []float32{0.9, 0.1}, now)

	var normSq float64
	for _, c := range updated[0].Point {
		normSq += float64(c) * float64(c)
	}
	if math.Abs(math.Sqrt(normSq)-1) > 1e-6 {
		t.Errorf("updated CoI point norm = %v, want 1", math.Sqrt(normSq))
	}
}

func TestClosest_TieBreaksByLowerUUID(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	cois := []model.CoI{
		{ID: high, Point: []float32{1, 0}},
		{ID: low, Point: []float32{1, 0}},
	}
	idx, _ := closest([]float32{1, 0}, cois)
	if cois[idx].ID != low {
		t.Errorf("closest() picked %v, want the lower-UUID tie winner %v", cois[idx].ID, low)
	}
}

func TestClosest_EmptyReturnsNegativeOne(t *testing.T) {
	idx, _ := closest([]float32{1, 0}, nil)
	if idx != -1 {
		t.Errorf("closest() idx = %d, want -1 for empty input", idx)
	}
}

func TestDecay_MonotonicallyDecreasesWithElapsed(t *testing.T) {
	now := time.Now()
	horizon := 10 * 24 * time.Hour
	d1 := decay(now, now.Add(time.Hour), horizon)
	d2 := decay(now, now.Add(5*24*time.Hour), horizon)
	if !(d1 > d2) {
		t.Errorf("decay not monotonically decreasing: d1=%v d2=%v", d1, d2)
	}
}

func TestDecay_ClampsToZeroBeyondHorizon(t *testing.T) {
	now := time.Now()
	horizon := 24 * time.Hour
	d := decay(now, now.Add(30*24*time.Hour), horizon)
	if d != 0 {
		t.Errorf("decay() = %v, want 0 beyond horizon", d)
	}
}

func TestDecay_ToleratesClockSkew(t *testing.T) {
	now := time.Now()
	d := decay(now, now.Add(-time.Hour), 24*time.Hour)
	if d != 1 {
		t.Errorf("decay() = %v, want 1 when now precedes lastView", d)
	}
}

func TestRelevances_SumToOne(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	positive := []model.CoI{
		{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 5, LastView: now},
		{ID: uuid.New(), Point: []float32{0, 1}, ViewCount: 2, LastView: now},
	}
	rel := e.Relevances(positive, now)
	var sum float64
	for _, r := range rel {
		sum += r
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("sum(Relevances) = %v, want 1", sum)
	}
}

func TestRelevances_EmptyIsAllZero(t *testing.T) {
	e := New(testConfig())
	rel := e.Relevances(nil, time.Now())
	if len(rel) != 0 {
		t.Errorf("len(rel) = %d, want 0", len(rel))
	}
}

func TestClassify_UnknownWhenNoPositiveCoIs(t *testing.T) {
	e := New(testConfig())
	state, ramp := e.Classify(nil)
	if state != StateUnknown || ramp != 0 {
		t.Errorf("Classify(nil) = (%v, %v), want (Unknown, 0)", state, ramp)
	}
}

func TestClassify_WarmingBelowMinPositiveCoIs(t *testing.T) {
	e := New(testConfig())
	positive := make([]model.CoI, 2)
	state, ramp := e.Classify(positive)
	if state != StateWarming {
		t.Errorf("state = %v, want Warming", state)
	}
	if math.Abs(ramp-2.0/3.0) > 1e-9 {
		t.Errorf("ramp = %v, want 2/3", ramp)
	}
}

func TestClassify_PersonalizedAtOrAboveMinPositiveCoIs(t *testing.T) {
	e := New(testConfig())
	positive := make([]model.CoI, 3)
	state, ramp := e.Classify(positive)
	if state != StatePersonalized || ramp != 1 {
		t.Errorf("Classify() = (%v, %v), want (Personalized, 1)", state, ramp)
	}
}

func TestProbeVectors_OrderedByDescendingRelevance(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	stale := model.CoI{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 1, LastView: now.Add(-20 * 24 * time.Hour)}
	fresh := model.CoI{ID: uuid.New(), Point: []float32{0, 1}, ViewCount: 10, LastView: now}
	probes := e.ProbeVectors([]model.CoI{stale, fresh}, now, 2)
	if len(probes) != 2 {
		t.Fatalf("len(probes) = %d, want 2", len(probes))
	}
	if probes[0][0] != 0 || probes[0][1] != 1 {
		t.Errorf("probes[0] = %v, want the fresher/higher-view-count CoI first", probes[0])
	}
}

func TestProbeVectors_CapsAtMaxProbes(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	positive := []model.CoI{
		{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 1, LastView: now},
		{ID: uuid.New(), Point: []float32{0, 1}, ViewCount: 1, LastView: now},
	}
	probes := e.ProbeVectors(positive, now, 1)
	if len(probes) != 1 {
		t.Errorf("len(probes) = %d, want 1", len(probes))
	}
}

func TestFiniteVector_RejectsNaNAndInf(t *testing.T) {
	if FiniteVector([]float32{float32(math.NaN()), 1}) {
		t.Error("FiniteVector() = true, want false for NaN component")
	}
	if FiniteVector([]float32{float32(math.Inf(1)), 1}) {
		t.Error("FiniteVector() = true, want false for Inf component")
	}
	if !FiniteVector([]float32{1, 2, 3}) {
		t.Error("FiniteVector() = false, want true for finite vector")
	}
}

func TestKeyPhrases_OrdersByBlendedScoreDescending(t *testing.T) {
	e := New(testConfig())
	candidates := map[string]float64{
		"low relevance phrase":  0.1,
		"high relevance phrase": 0.9,
		"mid relevance phrase":  0.5,
	}
	out := e.KeyPhrases(0.8, candidates)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (one per penalty slot)", len(out))
	}
	if out[0] != "high relevance phrase" {
		t.Errorf("out[0] = %q, want the highest-scoring phrase first", out[0])
	}
}

func TestKeyPhrases_TruncatesToPenaltyLength(t *testing.T) {
	e := New(testConfig()) // 3 penalty slots
	candidates := map[string]float64{"a": 1, "b": 0.9, "c": 0.8, "d": 0.7, "e": 0.6}
	out := e.KeyPhrases(0.5, candidates)
	if len(out) != 3 {
		t.Errorf("len(out) = %d, want 3 (truncated by penalty length)", len(out))
	}
}

func TestKeyPhrases_SkipsEmptyPhrase(t *testing.T) {
	e := New(testConfig())
	candidates := map[string]float64{"": 1, "real phrase": 0.5}
	out := e.KeyPhrases(0.5, candidates)
	for _, p := range out {
		if p == "" {
			t.Error("KeyPhrases() included an empty phrase")
		}
	}
}

func TestKeyPhrases_TieBreaksLexicographically(t *testing.T) {
	e := New(testConfig())
	candidates := map[string]float64{"zeta": 0.5, "alpha": 0.5}
	out := e.KeyPhrases(0.5, candidates)
	if len(out) < 2 || out[0] != "alpha" {
		t.Errorf("out = %v, want alpha before zeta on a score tie", out)
	}
}

func TestScore_ZeroWhenNoPositiveCoIs(t *testing.T) {
	e := New(testConfig())
	if score := e.Score([]float32{1, 0}, nil, time.Now()); score != 0 {
		t.Errorf("Score() = %v, want 0", score)
	}
}

func TestScore_HigherForCloserQuery(t *testing.T) {
	e := New(testConfig())
	now := time.Now()
	positive := []model.CoI{{ID: uuid.New(), Point: []float32{1, 0}, ViewCount: 3, LastView: now}}

	close := e.Score([]float32{1, 0}, positive, now)
	far := e.Score([]float32{0, 1}, positive, now)
	if !(close > far) {
		t.Errorf("Score(close)=%v, Score(far)=%v; want close > far", close, far)
	}
}

func TestKeyPhrases_EmptyCandidatesReturnsEmpty(t *testing.T) {
	e := New(testConfig())
	out := e.KeyPhrases(0.5, map[string]float64{})
	if len(out) != 0 {
		t.Errorf("len(out) = %d, want 0", len(out))
	}
}
