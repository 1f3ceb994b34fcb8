package config

// AssistConfig configures the AI completion collaborator.
type AssistConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`

	// Temperature is used in the default persona; PersonaTemperature in fiesta mode.
	Temperature        float32 `yaml:"temperature"`
	PersonaTemperature float32 `yaml:"persona_temperature"`
}

// HasCredentials reports whether an AI backend can be constructed.
func (c AssistConfig) HasCredentials() bool {
	return c.APIKey != ""
}
