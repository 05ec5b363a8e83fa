package affect

import "time"

// InteractionResult is everything the pipeline produces for one turn.
type InteractionResult struct {
	SessionID   string            `json:"session_id"`
	Turn        int               `json:"turn"`
	State       EmotionalState    `json:"state"`
	Prosody     *ProsodyFeatures  `json:"prosody,omitempty"`
	Indicators  *CrisisIndicators `json:"indicators,omitempty"`
	CrisisScore int               `json:"crisis_score"`

	// CrisisLevel is the committed session level after hysteresis, which may
	// differ from State.CrisisLevel (the per-turn reading).
	CrisisLevel CrisisLevel       `json:"crisis_level"`
	Voice       VoiceRenderParams `json:"voice"`
	Response    ResponseStyle     `json:"response"`
	PromptHints string            `json:"prompt_hints,omitempty"`
	Degraded    []Modality        `json:"degraded,omitempty"`
	Committed   bool              `json:"committed"`
	Latency     time.Duration     `json:"latency"`
}

// IsDegraded reports whether the given modality failed or timed out.
func (r *InteractionResult) IsDegraded(m Modality) bool {
	for _, d := range r.Degraded {
		if d == m {
			return true
		}
	}
	return false
}

// FallbackResult is the safe answer callers use when the pipeline returns an
// error: neutral state, unit voice parameters and the default response style.
func FallbackResult(sessionID string) *InteractionResult {
	return &InteractionResult{
		SessionID:   sessionID,
		State:       NeutralState(),
		CrisisLevel: CrisisNone,
		Voice:       NeutralVoiceParams(""),
		Response:    DefaultResponseStyle(),
	}
}
