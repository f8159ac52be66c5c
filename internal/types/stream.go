package types

// EventKind discriminates the StreamEvent union.
type EventKind int

const (
	EventStatus EventKind = iota
	EventResearchQuery
	EventText
	EventImage
	EventStreamEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventResearchQuery:
		return "research_query"
	case EventText:
		return "text"
	case EventImage:
		return "image"
	case EventStreamEnd:
		return "stream_end"
	default:
		return "unknown"
	}
}

// StatusKind names a progress phase shown to the user.
type StatusKind string

const (
	StatusResearchStart         StatusKind = "RESEARCH_START"
	StatusGenerationStart       StatusKind = "GENERATION_START"
	StatusExtractingDescription StatusKind = "EXTRACTING_DESCRIPTION"
	StatusGeneratingPrompt      StatusKind = "GENERATING_PROMPT"
	StatusGeneratingImage       StatusKind = "GENERATING_IMAGE"
	StatusSummarizing           StatusKind = "SUMMARIZING"
)

// StreamEvent is one element of a response stream.
//
// Only the fields relevant to Kind are set. A Text event carrying a non-nil
// Err is a failed payload: consumers replace their buffer with the error text
// and stop reading.
type StreamEvent struct {
	Kind    EventKind
	Status  StatusKind
	Text    string
	Image   []byte
	Caption string
	Err     error
}

// Status builds a status event.
func Status(kind StatusKind) StreamEvent {
	return StreamEvent{Kind: EventStatus, Status: kind}
}

// ResearchQuery builds a research progress event.
func ResearchQuery(query string) StreamEvent {
	return StreamEvent{Kind: EventResearchQuery, Text: query}
}

// Text builds a text delta event.
func Text(delta string) StreamEvent {
	return StreamEvent{Kind: EventText, Text: delta}
}

// FailedText builds a text event carrying a failed payload.
func FailedText(err error) StreamEvent {
	return StreamEvent{Kind: EventText, Err: err}
}

// Image builds a terminal image event.
func Image(data []byte, caption string) StreamEvent {
	return StreamEvent{Kind: EventImage, Image: data, Caption: caption}
}

// StreamEnd builds the terminal event carrying the full answer.
func StreamEnd(full string) StreamEvent {
	return StreamEvent{Kind: EventStreamEnd, Text: full}
}

// Failure is the error carried by a failed payload. Error returns the text
// shown to the user; the cause is kept for logs.
type Failure struct {
	Message string
	Cause   error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Cause }

// Fail builds a failed payload with a user-facing message.
func Fail(message string, cause error) StreamEvent {
	return FailedText(&Failure{Message: message, Cause: cause})
}
