package store

import "time"

// Category is the fixed set of issue classes the engine can diagnose
type Category string

const (
	CategoryOutdatedData        Category = "outdated_data"
	CategoryFormatMismatch      Category = "format_mismatch"
	CategoryCarrierMismatch     Category = "carrier_mismatch"
	CategoryPortMismatch        Category = "pol_pod_mismatch"
	CategoryDispatchDateError   Category = "dispatch_date_error"
	CategoryCarrierNotSupported Category = "carrier_not_supported"
	CategoryBatch               Category = "multi_container_batch"
	CategoryUnclassified        Category = "unclassified"
)

// Clarification names the single missing fact the engine asks for
type Clarification string

const (
	ClarifyNone                Clarification = ""
	ClarifyContainer           Clarification = "container_number"
	ClarifyCarrier             Clarification = "carrier"
	ClarifyTimeframe           Clarification = "timeframe"
	ClarifyCarrierConfirmation Clarification = "carrier_confirmation"
	ClarifyDescription         Clarification = "issue_description"
)

// VerdictStatus is the tri-state outcome of an SLA check
type VerdictStatus string

const (
	VerdictBreach        VerdictStatus = "breach"
	VerdictWithinWindow  VerdictStatus = "within_window"
	VerdictIndeterminate VerdictStatus = "indeterminate"
)

// Issue is a classified problem for one thread. Payload holds the
// category-specific data and is one of the payload types below.
type Issue struct {
	Category Category `json:"category"`
	Thread   string   `json:"thread,omitempty"`
	Payload  Payload  `json:"payload,omitempty"`
}

// Payload is implemented only by the category payload structs in this package
type Payload interface {
	category() Category
}

type OutdatedData struct {
	Carrier        string        `json:"carrier"`
	Tier           string        `json:"tier"`
	ElapsedHours   float64       `json:"elapsed_hours,omitempty"`
	ElapsedKnown   bool          `json:"elapsed_known"`
	Verdict        VerdictStatus `json:"verdict"`
	ThresholdHours int           `json:"threshold_hours,omitempty"`
}

type FormatMismatch struct {
	Raw               string   `json:"raw"`
	Reason            string   `json:"reason"`
	CarrierHint       string   `json:"carrier_hint,omitempty"`
	SuggestedPrefixes []string `json:"suggested_prefixes,omitempty"`
}

type CarrierMismatch struct {
	Recorded string `json:"recorded"`
	Stated   string `json:"stated"`
}

type PortMismatch struct {
	Stated   []string `json:"stated"`
	Reported []string `json:"reported,omitempty"`
}

type DispatchDateError struct {
	Dispatch *time.Time `json:"dispatch,omitempty"`
	GateIn   *time.Time `json:"gate_in,omitempty"`
}

type CarrierNotSupported struct {
	Name string `json:"name"`
	Tier string `json:"tier,omitempty"`
}

type Batch struct {
	Items []Issue `json:"items"`
}

type Unclassified struct {
	Missing Clarification `json:"missing,omitempty"`
}

func (OutdatedData) category() Category        { return CategoryOutdatedData }
func (FormatMismatch) category() Category      { return CategoryFormatMismatch }
func (CarrierMismatch) category() Category     { return CategoryCarrierMismatch }
func (PortMismatch) category() Category        { return CategoryPortMismatch }
func (DispatchDateError) category() Category   { return CategoryDispatchDateError }
func (CarrierNotSupported) category() Category { return CategoryCarrierNotSupported }
func (Batch) category() Category               { return CategoryBatch }
func (Unclassified) category() Category        { return CategoryUnclassified }

// NewIssue builds an Issue whose category always agrees with its payload
func NewIssue(thread string, payload Payload) Issue {
	return Issue{Category: payload.category(), Thread: thread, Payload: payload}
}

// SolutionStep is one rung of a category's progression. Terminal marks hand-off to a human.
type SolutionStep struct {
	Category Category `json:"category"`
	Rank     int      `json:"rank"`
	Key      string   `json:"key"`
	Terminal bool     `json:"terminal,omitempty"`
}

// Conflict records a carrier disagreement for an identifier that must be confirmed by the user
type Conflict struct {
	Thread   string `json:"thread"`
	Recorded string `json:"recorded"`
	Stated   string `json:"stated"`
}
