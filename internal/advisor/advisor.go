// Package advisor turns the fused emotional state and the committed crisis
// level into response-shaping hints for the text-generation collaborator.
package advisor

import (
	"fmt"
	"strings"

	"github.com/MrWong99/attune/internal/session"
	"github.com/MrWong99/attune/pkg/affect"
)

// HighIntensity is the emotional intensity from which emotion-specific
// styles apply.
const HighIntensity = 0.6

// Advise maps a state and the committed crisis level onto a response style.
// Critical always yields the crisis style; a high level yields a calm,
// supportive style; otherwise the primary emotion decides when it is intense
// enough. The function is pure.
func Advise(s affect.EmotionalState, level affect.CrisisLevel) affect.ResponseStyle {
	level = affect.MaxLevel(level, s.CrisisLevel)
	switch level {
	case affect.CrisisCritical:
		return affect.ResponseStyle{Tone: affect.ToneUrgent, Length: affect.LengthShort, Style: affect.StyleCrisis, Urgency: affect.UrgencyImmediate}
	case affect.CrisisHigh:
		return affect.ResponseStyle{Tone: affect.ToneCalm, Length: affect.LengthShort, Style: affect.StyleSupportive, Urgency: affect.UrgencyHigh}
	}

	if s.EmotionalIntensity >= HighIntensity {
		switch s.PrimaryEmotion {
		case affect.EmotionSadness, affect.EmotionLoneliness:
			return affect.ResponseStyle{Tone: affect.ToneGentle, Length: affect.LengthMedium, Style: affect.StyleSupportive, Urgency: affect.UrgencyHigh}
		case affect.EmotionJoy, affect.EmotionExcitement, affect.EmotionGratitude:
			return affect.ResponseStyle{Tone: affect.ToneEnthusiastic, Length: affect.LengthMedium, Style: affect.StyleCelebratory, Urgency: affect.UrgencyNormal}
		case affect.EmotionAnger, affect.EmotionFrustration, affect.EmotionDisgust:
			return affect.ResponseStyle{Tone: affect.ToneCalm, Length: affect.LengthShort, Style: affect.StyleDeEscalating, Urgency: affect.UrgencyElevated}
		case affect.EmotionFear, affect.EmotionAnxiety:
			return affect.ResponseStyle{Tone: affect.ToneReassuring, Length: affect.LengthShort, Style: affect.StyleGrounding, Urgency: affect.UrgencyHigh}
		}
	}

	if level == affect.CrisisMedium {
		return affect.ResponseStyle{Tone: affect.ToneGentle, Length: affect.LengthMedium, Style: affect.StyleSupportive, Urgency: affect.UrgencyElevated}
	}
	return affect.DefaultResponseStyle()
}

// styleGuidance is phrased indirectly: it describes how to answer, never
// labels the user.
var styleGuidance = map[affect.Style]string{
	affect.StyleSupportive:   "Acknowledge what they shared before offering anything else.",
	affect.StyleCelebratory:  "Share in their good news with warmth.",
	affect.StyleDeEscalating: "Stay patient and even; avoid arguing or over-explaining.",
	affect.StyleGrounding:    "Be steady and concrete; offer one small next step.",
	affect.StyleCrisis:       "Prioritise their safety. Respond briefly and warmly, encourage contacting a crisis line or someone they trust, and do not change the subject.",
}

// PromptHints renders the style and, when available, the session context as a
// short prompt fragment. It returns "" for the default style with no notable
// context, so nothing needs injecting.
func PromptHints(style affect.ResponseStyle, s affect.EmotionalState, ctx *session.Context) string {
	notable := ctx != nil && ctx.Turns >= 2 && ctx.Trend != session.TrendNeutral
	if style == affect.DefaultResponseStyle() && !notable {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[response style] tone=%s length=%s style=%s urgency=%s.", style.Tone, style.Length, style.Style, style.Urgency)
	if g, ok := styleGuidance[style.Style]; ok {
		b.WriteString(" ")
		b.WriteString(g)
	}
	if s.PrimaryEmotion != affect.EmotionNeutral && s.PrimaryEmotion != affect.EmotionCrisis {
		fmt.Fprintf(&b, " Detected mood: %s.", s.PrimaryEmotion)
	}
	if notable {
		fmt.Fprintf(&b, " Mood has been trending %s over the last %d turns.", ctx.Trend, ctx.Turns)
	}
	return b.String()
}
