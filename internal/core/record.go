package core

// Status tracks the synthesis lifecycle of a single record.
type Status string

const (
	// StatusReady marks a record whose text is ingested and awaiting synthesis.
	StatusReady Status = "ready"
	// StatusProcessing marks a record with a synthesis attempt in flight.
	StatusProcessing Status = "processing"
	// StatusTranscribed marks a record with synthesized audio available.
	StatusTranscribed Status = "transcribed"
	// StatusError marks a record whose ingestion or synthesis failed.
	StatusError Status = "error"
)

// Record is the unit of work: one named text payload and its conversion state.
//
// AudioSrc and Error are mutually exclusive; each implies its corresponding
// status. ID and Content are immutable after creation.
type Record struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Content  string `json:"content"`
	Status   Status `json:"status"`
	AudioSrc string `json:"audioSrc,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Settings holds the user-selected synthesis parameters.
type Settings struct {
	SelectedVoice   string   `json:"selectedVoice"`
	AvailableVoices []string `json:"availableVoices"`
	SelectedSpeed   float64  `json:"selectedSpeed"`
}

// Progress reports the position of an in-flight batch. It is transient state
// and is reset to zero whenever no batch operation is running.
type Progress struct {
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	CurrentName string `json:"currentName,omitempty"`
}

// BatchSummary aggregates the outcome of one batch run.
type BatchSummary struct {
	SuccessCount int
	ErrorCount   int
}

// CanTransition reports whether a record may move between the two statuses.
// Every synthesis attempt passes through processing; transcribed and error
// records are re-enterable via a new processing transition.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusReady, StatusTranscribed, StatusError:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusTranscribed || to == StatusError
	default:
		return false
	}
}
