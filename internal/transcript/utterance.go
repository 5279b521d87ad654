package transcript

import (
	"sort"
	"strings"

	"git.brightsales.dev/crm/golang/callweaver/internal/channelrole"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
)

// Utterance is one speaker-attributed span of the conversation. The slice
// stored on the call record is always ordered by start time.
type Utterance struct {
	Role       string  `json:"role"`
	Channel    int     `json:"channel"`
	Text       string  `json:"text"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Confidence float64 `json:"confidence,omitempty"`
}

const (
	ProvenanceDiarizedSentences = "diarized-sentences"
	ProvenanceDiarizedWords     = "diarized-words"
	ProvenanceFlat              = "flat"
)

// UtterancesFromSentences converts sentence-level output into utterances.
// It reports false when the service skipped channel attribution, in which
// case the caller falls through to word-level reconstruction.
func UtterancesFromSentences(sentences []provider.Sentence, assignment channelrole.Assignment) ([]Utterance, bool) {
	attributed := false

	for _, sentence := range sentences {
		if sentence.MediaChannel != 0 {
			attributed = true
			break
		}
	}

	if !attributed {
		return nil, false
	}

	utterances := make([]Utterance, 0, len(sentences))

	for _, sentence := range sentences {
		if strings.TrimSpace(sentence.Text) == "" {
			continue
		}

		utterances = append(utterances, Utterance{
			Role:       roleForChannel(sentence.MediaChannel, assignment),
			Channel:    sentence.MediaChannel,
			Text:       strings.TrimSpace(sentence.Text),
			StartTime:  sentence.StartTime,
			EndTime:    sentence.EndTime,
			Confidence: sentence.Confidence,
		})
	}

	sortUtterances(utterances)

	return utterances, true
}

// UtterancesFromWords rebuilds utterances from word-level output. Words on
// the same channel are grouped into one utterance until either the channel
// flips or the silence between consecutive words exceeds gapSeconds.
func UtterancesFromWords(words []provider.Word, assignment channelrole.Assignment, gapSeconds float64) []Utterance {
	sorted := make([]provider.Word, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	var (
		utterances []Utterance
		current    *Utterance
		texts      []string
	)

	flush := func() {
		if current == nil {
			return
		}

		current.Text = strings.Join(texts, " ")
		utterances = append(utterances, *current)
		current = nil
		texts = nil
	}

	for _, word := range sorted {
		text := strings.TrimSpace(word.Text)
		if text == "" {
			continue
		}

		split := current == nil ||
			current.Channel != word.MediaChannel ||
			word.StartTime-current.EndTime > gapSeconds

		if split {
			flush()

			current = &Utterance{
				Role:      roleForChannel(word.MediaChannel, assignment),
				Channel:   word.MediaChannel,
				StartTime: word.StartTime,
				EndTime:   word.EndTime,
			}
			texts = []string{text}

			continue
		}

		texts = append(texts, text)
		current.EndTime = word.EndTime
	}

	flush()

	return utterances
}

// FlatUtterance wraps unattributed transcription text as a single utterance
// spanning the whole recording.
func FlatUtterance(text string, durationSeconds int) []Utterance {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	return []Utterance{{
		Role:    "Unknown",
		Text:    text,
		EndTime: float64(durationSeconds),
	}}
}

func roleForChannel(channel int, assignment channelrole.Assignment) string {
	switch channel {
	case assignment.AgentChannel:
		return channelrole.RoleAgent
	case assignment.CustomerChannel:
		return channelrole.RoleCustomer
	default:
		return "Unknown"
	}
}

func sortUtterances(utterances []Utterance) {
	sort.SliceStable(utterances, func(i, j int) bool {
		return utterances[i].StartTime < utterances[j].StartTime
	})
}
