// Package groq registers Groq's OpenAI-compatible endpoint.
package groq

import (
	"github.com/shillcollin/agentkit"
	"github.com/shillcollin/agentkit/providers/compat"
)

// Factory creates Groq clients. Configuration comes from GROQ_API_KEY and
// GROQ_BASE_URL.
var Factory = compat.Factory{
	Name:           "groq",
	DefaultBaseURL: DefaultBaseURL,
	DefaultModel:   DefaultModel,
	EnvPrefix:      "GROQ",
	ParamPolicy:    allowParam,
}

func init() {
	agentkit.RegisterProvider("groq", Factory)
}

// New constructs a Groq client from explicit options.
func New(opts compat.CompatOpts) *compat.Client {
	opts.Provider = "groq"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.ParamPolicy == nil {
		opts.ParamPolicy = allowParam
	}
	return compat.New(opts)
}
