package frustration

import (
	"testing"

	"tracking-support-be/pkg/store"
	"tracking-support-be/pkg/support/lexicon"

	"github.com/stretchr/testify/assert"
)

func TestAssess(t *testing.T) {
	d := NewDetector(lexicon.Default())

	tests := []struct {
		name      string
		current   string
		history   []string
		prior     store.FrustrationLevel
		wantLevel store.FrustrationLevel
		wantHuman bool
	}{
		{name: "calm", current: "MSCU7364555 has no updates", wantLevel: store.FrustrationNone},
		{name: "mild", current: "this is annoying", wantLevel: store.FrustrationMild},
		{name: "high in one message", current: "still not working, this is useless", wantLevel: store.FrustrationHigh},
		{name: "human request is immediate", current: "let me speak to a real person", wantLevel: store.FrustrationHigh, wantHuman: true},
		{
			name:      "history adds at half weight",
			current:   "this is annoying",
			history:   []string{"still not updating", "I already told you the number"},
			wantLevel: store.FrustrationHigh,
		},
		{
			name:      "only the last two messages count",
			current:   "ok",
			history:   []string{"useless", "thanks", "fine"},
			wantLevel: store.FrustrationNone,
		},
		{name: "never below prior", current: "thanks", prior: store.FrustrationHigh, wantLevel: store.FrustrationHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := d.Assess(tt.current, tt.history, tt.prior)
			assert.Equal(t, tt.wantLevel, a.Level)
			assert.Equal(t, tt.wantHuman, a.HumanRequested)
		})
	}
}
