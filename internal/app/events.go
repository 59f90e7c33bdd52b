package app

// Stage names a step of a video conversion.
type Stage string

const (
	StageEstimate Stage = "estimate"
	StageConvert  Stage = "convert"
	StageDone     Stage = "done"
	StageFailed   Stage = "failed"
)

// Event reports conversion progress.
type Event struct {
	Job   string `json:"job,omitempty"`
	Video string `json:"video"`
	Clip  string `json:"clip,omitempty"`
	Stage Stage  `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Error string `json:"error,omitempty"`
}

// Observer receives progress events. It is called from the converting
// goroutine and should return quickly.
type Observer func(Event)

func (o Observer) emit(e Event) {
	if o != nil {
		o(e)
	}
}
