package affect

// Tone, Length, Style and Urgency are the closed vocabularies of the response
// style hint consumed by the text-generation collaborator.
type (
	Tone    string
	Length  string
	Style   string
	Urgency string
)

const (
	ToneNeutral      Tone = "neutral"
	ToneGentle       Tone = "gentle"
	ToneEnthusiastic Tone = "enthusiastic"
	ToneCalm         Tone = "calm"
	ToneReassuring   Tone = "reassuring"
	ToneUrgent       Tone = "urgent"
)

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

const (
	StyleConversational Style = "conversational"
	StyleSupportive     Style = "supportive"
	StyleCelebratory    Style = "celebratory"
	StyleDeEscalating   Style = "de-escalating"
	StyleGrounding      Style = "grounding"
	StyleCrisis         Style = "crisis"
)

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyElevated  Urgency = "elevated"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// ResponseStyle is the advisory shape of the next reply.
type ResponseStyle struct {
	Tone    Tone    `json:"tone"`
	Length  Length  `json:"length"`
	Style   Style   `json:"style"`
	Urgency Urgency `json:"urgency"`
}

// DefaultResponseStyle is used when no rule applies and in fallback results.
func DefaultResponseStyle() ResponseStyle {
	return ResponseStyle{Tone: ToneNeutral, Length: LengthMedium, Style: StyleConversational, Urgency: UrgencyNormal}
}
