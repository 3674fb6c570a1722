package sla

import (
	"testing"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/carrier"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	p1 := carrier.Profile{Name: "MSC", Tier: carrier.TierP1, MinHours: 3, MaxHours: 6}
	p2 := carrier.Profile{Name: "COSCO", Tier: carrier.TierP2, MinHours: 24, MaxHours: 48}
	unsupported := carrier.Profile{Name: "Sealead", Tier: carrier.TierUnsupported}

	tests := []struct {
		name    string
		profile carrier.Profile
		elapsed float64
		known   bool
		want    store.VerdictStatus
	}{
		{name: "P1 30h breach", profile: p1, elapsed: 30, known: true, want: store.VerdictBreach},
		{name: "P1 exactly max is within", profile: p1, elapsed: 6, known: true, want: store.VerdictWithinWindow},
		{name: "P1 2h within", profile: p1, elapsed: 2, known: true, want: store.VerdictWithinWindow},
		{name: "P2 30h within", profile: p2, elapsed: 30, known: true, want: store.VerdictWithinWindow},
		{name: "P2 49h breach", profile: p2, elapsed: 49, known: true, want: store.VerdictBreach},
		{name: "P1 unknown", profile: p1, known: false, want: store.VerdictIndeterminate},
		{name: "P2 unknown", profile: p2, known: false, want: store.VerdictIndeterminate},
		{name: "unsupported", profile: unsupported, elapsed: 500, known: true, want: store.VerdictIndeterminate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.profile, tt.elapsed, tt.known)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, tt.want == store.VerdictBreach, v.Breach())
			assert.Equal(t, tt.profile.MaxHours, v.ThresholdHours)
		})
	}
}

func TestEvaluator_EvaluateCarrier(t *testing.T) {
	e := NewEvaluator(carrier.Default())

	v := e.EvaluateCarrier("MSC", 30, true)
	assert.Equal(t, store.VerdictBreach, v.Status)
	assert.Equal(t, 6, v.ThresholdHours)

	v = e.EvaluateCarrier("Unknown Line", 30, true)
	assert.Equal(t, store.VerdictIndeterminate, v.Status)
}
