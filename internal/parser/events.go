package parser

// State names the kind of batch a parser event belongs to.
type State uint8

const (
	StateUndefined State = iota
	StateCreateParser
	StateAddFileToParser
	StateReparseFile
)

func (s State) String() string {
	switch s {
	case StateCreateParser:
		return "create-parser"
	case StateAddFileToParser:
		return "add-file"
	case StateReparseFile:
		return "reparse-file"
	}
	return "undefined"
}

// Phase tells batch start from batch end.
type Phase uint8

const (
	PhaseStart Phase = iota
	PhaseEnd
)

func (p Phase) String() string {
	if p == PhaseEnd {
		return "end"
	}
	return "start"
}

// Event is emitted at the start and end of every batch. An End event whose
// State is StateUndefined reports a batch that was cancelled or failed.
type Event struct {
	Phase   Phase
	State   State
	Project string
	Parser  *Parser
	Message string
}

// EventSink receives parser events. It is called from batch goroutines and
// must not block for long.
type EventSink func(Event)
