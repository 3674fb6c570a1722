package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignals(t *testing.T) {
	lx := Default()

	tests := []struct {
		name   string
		text   string
		signal Signal
		want   bool
	}{
		{name: "no updates", text: "There are no updates on my container", signal: SignalOutdated, want: true},
		{name: "not showing", text: "tracking is NOT SHOWING anything", signal: SignalOutdated, want: true},
		{name: "wrong carrier", text: "you picked the wrong carrier", signal: SignalCarrierMismatch, want: true},
		{name: "pod", text: "the POD is Rotterdam, not Hamburg", signal: SignalPortMismatch, want: true},
		{name: "dispatch", text: "I entered the dispatch date as 12 May", signal: SignalDispatchDate, want: true},
		{name: "batch", text: "all of my containers are stuck", signal: SignalBatch, want: true},
		{name: "resolution", text: "it's working now, thanks", signal: SignalResolution, want: true},
		{name: "resolution not negated", text: "it's working now, thanks", signal: SignalResolutionVeto, want: false},
		{name: "negated updating now", text: "it is still not updating now", signal: SignalResolutionVeto, want: true},
		{name: "negated working now", text: "it's not working now", signal: SignalResolutionVeto, want: true},
		{name: "contraction", text: "it isn't showing now", signal: SignalResolutionVeto, want: true},
		{name: "negation in earlier clause", text: "I had not checked, but it's working now", signal: SignalResolutionVeto, want: false},
		{name: "greeting only", text: "Hello!", signal: SignalGreeting, want: true},
		{name: "greeting with question", text: "hello, my container is stuck", signal: SignalGreeting, want: false},
		{name: "closing", text: "no thanks", signal: SignalClosing, want: true},
		{name: "closing needs whole message", text: "no updates since Monday", signal: SignalClosing, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lx.Has(tt.signal, tt.text))
		})
	}
}

func TestFrustration(t *testing.T) {
	lx := Default()

	markers := lx.Frustration("this is still not working, useless")
	var total float64
	for _, m := range markers {
		total += m.Weight
	}
	assert.GreaterOrEqual(t, total, 3.0)

	markers = lx.Frustration("can I talk to a human please")
	require.NotEmpty(t, markers)
	assert.True(t, markers[0].Immediate)

	assert.Empty(t, lx.Frustration("thanks for the help"))
}

func TestPorts(t *testing.T) {
	lx := Default()

	text := "shipped from Nhava Sheva to Jebel Ali"
	ports := lx.Ports(text)
	require.Len(t, ports, 2)
	assert.Equal(t, "INNSA", ports[0].Code)
	assert.Equal(t, "pol", lx.PortRole(text, ports[0].Start))
	assert.Equal(t, "AEJEA", ports[1].Code)
	assert.Equal(t, "pod", lx.PortRole(text, ports[1].Start))

	assert.Equal(t, "", lx.PortRole("Singapore", 0))
}

func TestAmbiguousTime(t *testing.T) {
	lx := Default()

	assert.Len(t, lx.AmbiguousTime("added it a while ago, maybe recently"), 2)
	assert.Empty(t, lx.AmbiguousTime("added it 2 days ago"))
}

func TestHasBefore(t *testing.T) {
	lx := Default()
	text := "dispatch date 2024-05-12 but ETA 2024-06-01"

	assert.True(t, lx.HasBefore(SignalDispatchDate, text, 14, 40))
	assert.False(t, lx.HasBefore(SignalDispatchDate, text, 0, 40))
}

func TestParse_BadPattern(t *testing.T) {
	_, err := Parse([]byte("signals:\n  outdated: [\"(unclosed\"]\n"))
	assert.Error(t, err)
}

func TestIsCarrierStopword(t *testing.T) {
	lx := Default()
	assert.True(t, lx.IsCarrierStopword("The"))
	assert.False(t, lx.IsCarrierStopword("Sealead"))
}
