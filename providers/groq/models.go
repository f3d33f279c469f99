package groq

// Model names served by Groq.
const (
	Llama33_70B = "llama-3.3-70b-versatile"
	Llama31_8B  = "llama-3.1-8b-instant"
	GPTOSS120B  = "openai/gpt-oss-120b"
	GPTOSS20B   = "openai/gpt-oss-20b"
	Qwen3_32B   = "qwen/qwen3-32b"
	KimiK2      = "moonshotai/kimi-k2-instruct"
)

// DefaultModel is used when neither config nor request names a model.
const DefaultModel = Llama33_70B

// DefaultBaseURL is Groq's OpenAI-compatible API root.
const DefaultBaseURL = "https://api.groq.com/openai/v1"
