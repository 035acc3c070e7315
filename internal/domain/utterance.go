package domain

import "strings"

// Utterance is one speaker-attributed span of transcribed speech.
// Speaker is nil when the backend could not attribute the span.
// Start and End are offsets in seconds and may be absent.
type Utterance struct {
	Speaker *string  `json:"speaker"`
	Text    string   `json:"text"`
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
}

// PublicUtterance is the shape returned to API clients.
type PublicUtterance struct {
	Speaker *string `json:"speaker"`
	Text    string  `json:"text"`
}

// SameSpeaker reports whether u and other share a speaker label.
// Two unknown speakers count as the same speaker.
func (u Utterance) SameSpeaker(other Utterance) bool {
	if u.Speaker == nil || other.Speaker == nil {
		return u.Speaker == nil && other.Speaker == nil
	}
	return *u.Speaker == *other.Speaker
}

// Public drops the timing offsets.
func (u Utterance) Public() PublicUtterance {
	return PublicUtterance{Speaker: u.Speaker, Text: u.Text}
}

// MergeUtterances coalesces consecutive utterances from the same speaker.
//
// The input is walked once. Text of a same-speaker follower is trimmed and
// appended with a single space; the merged span keeps the first start and takes
// the follower's end when the follower has one. Order is preserved and the
// input slice is not modified.
func MergeUtterances(input []Utterance) []Utterance {
	if len(input) == 0 {
		return []Utterance{}
	}

	out := make([]Utterance, 0, len(input))
	buffer := input[0]
	for _, curr := range input[1:] {
		if curr.SameSpeaker(buffer) {
			buffer.Text = buffer.Text + " " + strings.TrimSpace(curr.Text)
			if curr.End != nil {
				buffer.End = curr.End
			}
			continue
		}
		out = append(out, buffer)
		buffer = curr
	}
	out = append(out, buffer)

	return out
}

// PublicUtterances converts a transcript to its client-facing form.
func PublicUtterances(utterances []Utterance) []PublicUtterance {
	out := make([]PublicUtterance, 0, len(utterances))
	for _, u := range utterances {
		out = append(out, u.Public())
	}
	return out
}
