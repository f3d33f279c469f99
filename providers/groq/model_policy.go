package groq

import (
	"slices"
	"strings"
)

// modelProfile lists the optional request fields a Groq model family accepts.
type modelProfile struct {
	reasoningFormat bool
	efforts         []string
}

// profiles is matched by model-name prefix. Unlisted models take the zero
// profile: no reasoning fields.
var profiles = []struct {
	prefix  string
	profile modelProfile
}{
	{"openai/gpt-oss", modelProfile{reasoningFormat: true, efforts: []string{"low", "medium", "high"}}},
	{"qwen/qwen3", modelProfile{reasoningFormat: true, efforts: []string{"none", "default"}}},
}

func profileForModel(model string) modelProfile {
	m := strings.ToLower(model)
	for _, p := range profiles {
		if strings.HasPrefix(m, p.prefix) {
			return p.profile
		}
	}
	return modelProfile{}
}

// allowParam filters additional parameters Groq rejects. Logit bias and
// logprobs are unsupported on every model and n must be 1.
func allowParam(model, key string, value any) bool {
	switch key {
	case "logit_bias", "logprobs", "top_logprobs":
		return false
	case "n":
		return isOne(value)
	case "reasoning_format":
		return profileForModel(model).reasoningFormat
	case "reasoning_effort":
		effort, _ := value.(string)
		return slices.Contains(profileForModel(model).efforts, strings.ToLower(effort))
	default:
		return true
	}
}

func isOne(value any) bool {
	switch n := value.(type) {
	case int:
		return n == 1
	case int64:
		return n == 1
	case float64:
		return n == 1
	default:
		return false
	}
}
