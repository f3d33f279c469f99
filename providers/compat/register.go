package compat

import "github.com/shillcollin/agentkit"

// Local model servers register under their own names. They need no API key.
func init() {
	agentkit.RegisterProvider("ollama", Factory{
		Name:           "ollama",
		DefaultBaseURL: "http://localhost:11434/v1",
		EnvPrefix:      "OLLAMA",
	})
	agentkit.RegisterProvider("vllm", Factory{
		Name:           "vllm",
		DefaultBaseURL: "http://localhost:8000/v1",
		EnvPrefix:      "VLLM",
	})
}
