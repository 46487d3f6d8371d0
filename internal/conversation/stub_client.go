package conversation

import (
	"context"
	"encoding/json"

	"github.com/valooran/patient-intake-system/internal/diagnosis"
)

var stubQuestions = []string{
	"I'm sorry you're not feeling well. How old are you and what is your gender?",
	"When did the symptoms start, and have they been constant or coming and going?",
	"Where exactly is the discomfort and how would you describe it (sharp, dull, throbbing)?",
}

// StubLLMClient is an offline model for local development: it asks a fixed set of
// intake questions and then concludes. It always answers in the structured format.
type StubLLMClient struct {
	// QuestionsBeforeConclusion defaults to the number of scripted questions.
	QuestionsBeforeConclusion int
}

func NewStubLLMClient() *StubLLMClient {
	return &StubLLMClient{QuestionsBeforeConclusion: len(stubQuestions)}
}

func (c *StubLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return LLMResponse{}, err
	}

	userTurns := 0
	for _, msg := range req.Messages {
		if msg.Role == ChatRoleUser {
			userTurns++
		}
	}

	limit := c.QuestionsBeforeConclusion
	if limit <= 0 {
		limit = len(stubQuestions)
	}

	var out diagnosis.Conclusion
	if userTurns <= limit {
		out = diagnosis.Conclusion{
			Reply:       stubQuestions[(userTurns-1+len(stubQuestions))%len(stubQuestions)],
			Severity:    diagnosis.SeverityLow,
			RedFlags:    []string{},
			Medications: []string{},
			Hospitals:   []string{},
		}
	} else {
		out = diagnosis.Conclusion{
			Reply:        "Thank you, that gives me a clear picture. Your symptoms are most consistent with a tension-type headache. " + ConclusionSentence,
			IsConclusion: true,
			Disease:      "Tension-type headache",
			Severity:     diagnosis.SeverityModerate,
			RedFlags:     []string{"Sudden, severe headache unlike any before", "Fever with a stiff neck", "Weakness, confusion or loss of vision"},
			Medications:  []string{"paracetamol", "ibuprofen", "naproxen"},
			Hospitals:    []string{"AIIMS New Delhi", "Christian Medical College Vellore", "Apollo Hospitals Chennai"},
			Confidence:   "Moderate",
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return LLMResponse{}, err
	}
	return LLMResponse{Text: string(data), StopReason: "stop"}, nil
}
