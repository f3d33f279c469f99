package gemini

// ProviderOption sets a Gemini-specific request parameter. The resulting map
// is passed as core.CompletionRequest.AdditionalParams.
type ProviderOption func(map[string]any)

// Additional parameter keys understood by this client. They are placed in
// generationConfig; any other key is sent at the top level of the request.
const (
	ParamThinkingBudget   = "thinking_budget"
	ParamIncludeThoughts  = "include_thoughts"
	ParamResponseMIMEType = "response_mime_type"
	ParamResponseSchema   = "response_schema"
	ParamTopP             = "top_p"
	ParamTopK             = "top_k"
	ParamStopSequences    = "stop_sequences"
	ParamSeed             = "seed"
	ParamSafetySettings   = "safetySettings"
)

var generationKeys = map[string]string{
	ParamResponseMIMEType: "responseMimeType",
	ParamResponseSchema:   "responseSchema",
	ParamTopP:             "topP",
	ParamTopK:             "topK",
	ParamStopSequences:    "stopSequences",
	ParamSeed:             "seed",
	"presence_penalty":    "presencePenalty",
	"frequency_penalty":   "frequencyPenalty",
	"candidate_count":     "candidateCount",
}

// BuildProviderOptions constructs an additional params map.
func BuildProviderOptions(opts ...ProviderOption) map[string]any {
	out := make(map[string]any)
	for _, opt := range opts {
		if opt != nil {
			opt(out)
		}
	}
	return out
}

// WithThinkingBudget sets the thinking budget (token count) for Gemini reasoning.
func WithThinkingBudget(tokens int) ProviderOption {
	return func(m map[string]any) {
		m[ParamThinkingBudget] = tokens
	}
}

// WithIncludeThoughts toggles inclusion of thought summaries in model responses.
func WithIncludeThoughts(include bool) ProviderOption {
	return func(m map[string]any) {
		m[ParamIncludeThoughts] = include
	}
}

// WithResponseMIME sets the desired response MIME type (e.g. application/json).
func WithResponseMIME(mime string) ProviderOption {
	return func(m map[string]any) {
		m[ParamResponseMIMEType] = mime
	}
}

// WithJSONResponse configures the request to return strict JSON payloads.
func WithJSONResponse() ProviderOption {
	return WithResponseMIME("application/json")
}

// WithTopK limits sampling to the k most likely tokens.
func WithTopK(k int) ProviderOption {
	return func(m map[string]any) {
		m[ParamTopK] = k
	}
}

// WithSafetyThreshold sets the block threshold for a harm category, for
// example ("HARM_CATEGORY_HARASSMENT", "BLOCK_ONLY_HIGH").
func WithSafetyThreshold(category, threshold string) ProviderOption {
	return func(m map[string]any) {
		settings, _ := m[ParamSafetySettings].([]map[string]string)
		m[ParamSafetySettings] = append(settings, map[string]string{
			"category":  category,
			"threshold": threshold,
		})
	}
}
