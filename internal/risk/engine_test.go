package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keeldata/trustvault/internal/access"
	"github.com/keeldata/trustvault/internal/pkg/xtime"
	"github.com/keeldata/trustvault/internal/vault"
)

func intPtr(v int) *int {
	return &v
}

func testActor() vault.HashKey {
	return vault.Resolve(vault.ResolveTenant("acme"), vault.KindActor, "alice@acme.test")
}

func freezeClock(t *testing.T) *time.Time {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	xtime.SetUTCNowFunc(func() time.Time { return now })
	t.Cleanup(xtime.ResetUTCNowFunc)

	return &now
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"negative weight", func(c *Config) { c.Weights.Device = -1 }, true},
		{"all zero weights", func(c *Config) { c.Weights = Weights{} }, true},
		{"full above standard", func(c *Config) { c.Boundaries.FullMax = 60 }, true},
		{"standard equals elevated", func(c *Config) { c.Boundaries.StandardMax = 75 }, true},
		{"elevated at 100", func(c *Config) { c.Boundaries.ElevatedMax = 100 }, true},
		{"category without patterns", func(c *Config) { c.Categories[0].Patterns = nil }, true},
		{"category score out of range", func(c *Config) { c.Categories[0].Score = 101 }, true},
		{"zero attempt window", func(c *Config) { c.AttemptWindow = 0 }, true},
		{"zero attempt limit", func(c *Config) { c.AttemptLimit = 0 }, true},
		{"zero tracked actors", func(c *Config) { c.TrackedActors = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAssessMissingSignalsAssumeWorstCase(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	got := engine.Assess(testActor(), nil, Signals{})

	require.Equal(t, 100, got.Components.Device)
	require.Equal(t, 100, got.Components.Network)
	require.Equal(t, 0, got.Components.Behavior)
	require.Equal(t, 0, got.Components.Sensitivity)

	// 30*100 + 20*100 over total weight 100.
	require.Equal(t, 50, got.Score)
	require.Equal(t, access.TierStandard, got.Tier)
}

func TestAssessTrustedQuietRequestScoresLow(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	got := engine.Assess(testActor(), []byte(`{"name":"report-q3"}`), Signals{
		DeviceTrust: intPtr(100),
		NetworkRisk: intPtr(0),
	})

	require.Equal(t, 0, got.Score)
	require.Equal(t, access.TierFull, got.Tier)
	require.Empty(t, got.Categories)
}

func TestAssessMonotonic(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	base := engine.Assess(testActor(), nil, Signals{
		DeviceTrust: intPtr(80),
		NetworkRisk: intPtr(20),
	})

	// Lowering device trust raises the device component and must never
	// lower the combined score.
	for trust := 80; trust >= 0; trust -= 10 {
		got := engine.Assess(testActor(), nil, Signals{
			DeviceTrust: intPtr(trust),
			NetworkRisk: intPtr(20),
		})
		require.GreaterOrEqual(t, got.Score, base.Score,
			"score must not drop when device trust drops to %d", trust)
		base = got
	}
}

func TestAssessClampsSignals(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	got := engine.Assess(testActor(), nil, Signals{
		DeviceTrust: intPtr(500),
		NetworkRisk: intPtr(-10),
	})

	require.Equal(t, 0, got.Components.Device)
	require.Equal(t, 0, got.Components.Network)
}

func TestTierBoundaries(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		score int
		want  access.Tier
	}{
		{0, access.TierFull},
		{25, access.TierFull},
		{26, access.TierStandard},
		{50, access.TierStandard},
		{51, access.TierElevated},
		{75, access.TierElevated},
		{76, access.TierDenied},
		{100, access.TierDenied},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, engine.TierFor(tt.score), "score %d", tt.score)
	}
}

func TestAttemptTrackerWindow(t *testing.T) {
	now := freezeClock(t)

	tracker, err := NewAttemptTracker(15*time.Minute, 5, 16)
	require.NoError(t, err)

	actor := testActor()
	require.Equal(t, 0, tracker.Failures(actor))
	require.Equal(t, 0, tracker.Score(actor))

	tracker.RecordFailure(actor)
	tracker.RecordFailure(actor)
	require.Equal(t, 2, tracker.Failures(actor))
	require.Equal(t, 40, tracker.Score(actor))

	// Push the clock past the window; old failures age out.
	*now = now.Add(16 * time.Minute)
	require.Equal(t, 0, tracker.Failures(actor))

	// Saturation: the score caps at 100 no matter how many failures land.
	for range 8 {
		tracker.RecordFailure(actor)
	}

	require.Equal(t, 100, tracker.Score(actor))

	tracker.Reset(actor)
	require.Equal(t, 0, tracker.Failures(actor))
}

func TestEngineBehaviorSignal(t *testing.T) {
	freezeClock(t)

	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	actor := testActor()
	clean := engine.Assess(actor, nil, Signals{DeviceTrust: intPtr(100), NetworkRisk: intPtr(0)})
	require.Equal(t, 0, clean.Components.Behavior)

	for range 5 {
		engine.RecordFailure(actor)
	}

	hot := engine.Assess(actor, nil, Signals{DeviceTrust: intPtr(100), NetworkRisk: intPtr(0)})
	require.Equal(t, 100, hot.Components.Behavior)
	require.Equal(t, 25, hot.Score)

	engine.ResetFailures(actor)
	cooled := engine.Assess(actor, nil, Signals{DeviceTrust: intPtr(100), NetworkRisk: intPtr(0)})
	require.Equal(t, 0, cooled.Components.Behavior)
}

func TestScanner(t *testing.T) {
	scanner := NewScanner(DefaultConfig().Categories)

	tests := []struct {
		name           string
		payload        string
		wantScore      int
		wantCategories []string
	}{
		{
			name:      "empty payload",
			payload:   "",
			wantScore: 0,
		},
		{
			name:      "invalid json is worst case",
			payload:   `{"broken`,
			wantScore: 100,
		},
		{
			name:      "clean payload",
			payload:   `{"name":"quarterly-report","pages":12}`,
			wantScore: 0,
		},
		{
			name:           "credential key",
			payload:        `{"password":"hunter2"}`,
			wantScore:      80,
			wantCategories: []string{"credentials"},
		},
		{
			name:           "ssn in value",
			payload:        `{"note":"ssn 123-45-6789 on file"}`,
			wantScore:      90,
			wantCategories: []string{"government-id"},
		},
		{
			name:           "card number as json number",
			payload:        `{"pan":4111111111111111}`,
			wantScore:      90,
			wantCategories: []string{"payment"},
		},
		{
			name:           "multiple categories take max and sort",
			payload:        `{"password":"x","diagnosis":"flu"}`,
			wantScore:      80,
			wantCategories: []string{"credentials", "health"},
		},
		{
			name:           "nested arrays are walked",
			payload:        `{"items":[{"meta":{"api_key":"k"}}]}`,
			wantScore:      80,
			wantCategories: []string{"credentials"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, categories := scanner.Scan([]byte(tt.payload))
			require.Equal(t, tt.wantScore, score)
			require.Equal(t, tt.wantCategories, categories)
		})
	}
}

func TestEngineSensitivityDrivesScore(t *testing.T) {
	engine, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	got := engine.Assess(testActor(), []byte(`{"password":"x"}`), Signals{
		DeviceTrust: intPtr(100),
		NetworkRisk: intPtr(0),
	})

	require.Equal(t, 80, got.Components.Sensitivity)
	require.Equal(t, []string{"credentials"}, got.Categories)
	require.Equal(t, 20, got.Score)
	require.Equal(t, access.TierFull, got.Tier)
}
