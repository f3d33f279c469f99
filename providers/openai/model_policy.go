package openai

import (
	"slices"
	"strings"
)

// modelProfile is what a model family accepts beyond messages and tools.
type modelProfile struct {
	// maxCompletionTokens sends max_completion_tokens instead of max_tokens.
	maxCompletionTokens bool
	// sampling covers temperature, top_p, penalties, logit_bias and seed.
	sampling bool
	// efforts lists accepted reasoning_effort values; nil rejects the field.
	efforts []string
}

var reasoningProfile = modelProfile{maxCompletionTokens: true, efforts: []string{"low", "medium", "high"}}

// profiles is matched by model-name prefix, first hit wins.
var profiles = []struct {
	prefix  string
	profile modelProfile
}{
	{"gpt-5", modelProfile{maxCompletionTokens: true, efforts: []string{"minimal", "low", "medium", "high"}}},
	{"gpt-4.1", modelProfile{maxCompletionTokens: true, sampling: true}},
	{"o1", reasoningProfile},
	{"o3", reasoningProfile},
	{"o4", reasoningProfile},
}

func profileForModel(model string) modelProfile {
	m := strings.ToLower(model)
	for _, p := range profiles {
		if strings.HasPrefix(m, p.prefix) {
			return p.profile
		}
	}
	return modelProfile{sampling: true}
}

// allows reports whether an additional parameter may be forwarded.
func (p modelProfile) allows(key string, value any) bool {
	switch key {
	case "top_p", "seed", "logit_bias", "presence_penalty", "frequency_penalty":
		return p.sampling
	case "reasoning_effort":
		effort, _ := value.(string)
		return slices.Contains(p.efforts, strings.ToLower(effort))
	default:
		return true
	}
}
