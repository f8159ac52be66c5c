package config

// LLMConfig configures the generative model collaborator.
type LLMConfig struct {
	Model   string   `yaml:"model"`
	APIKeys []string `yaml:"api_keys"` // rotated on quota/auth failure
	BaseURL string   `yaml:"base_url"`
	Timeout string   `yaml:"timeout"`

	// Safety maps a harm category (HARM_CATEGORY_*) to a block threshold
	// (BLOCK_NONE, BLOCK_ONLY_HIGH, ...). Applied to every generation call
	// except strategy classification.
	Safety map[string]string `yaml:"safety"`
}

// DefaultSafety disables blocking for every harm category.
func DefaultSafety() map[string]string {
	return map[string]string{
		"HARM_CATEGORY_HARASSMENT":        "BLOCK_NONE",
		"HARM_CATEGORY_HATE_SPEECH":       "BLOCK_NONE",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT": "BLOCK_NONE",
		"HARM_CATEGORY_DANGEROUS_CONTENT": "BLOCK_NONE",
	}
}

// ResearchConfig configures web search.
type ResearchConfig struct {
	MaxResults int    `yaml:"max_results"`
	Region     string `yaml:"region"` // DuckDuckGo kl parameter
	Timeout    string `yaml:"timeout"`
	CacheTTL   string `yaml:"cache_ttl"`
	CacheSize  int    `yaml:"cache_size"`
}

// ExtractionConfig configures web page text extraction.
type ExtractionConfig struct {
	Timeout           string `yaml:"timeout"`
	MinChars          int    `yaml:"min_chars"` // below this the next stage runs
	MaxBytes          int64  `yaml:"max_bytes"`
	UserAgent         string `yaml:"user_agent"`
	RenderWithBrowser bool   `yaml:"render_with_browser"`
	BrowserBin        string `yaml:"browser_bin"`
}

// ImagingConfig configures image synthesis.
type ImagingConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIToken string `yaml:"api_token"`
	Timeout  string `yaml:"timeout"`
}

// DocumentsConfig configures uploaded document handling.
type DocumentsConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// RenderConfig configures streaming output.
type RenderConfig struct {
	EditInterval     string `yaml:"edit_interval"`
	SummaryThreshold int    `yaml:"summary_threshold"`
	MessageLimit     int    `yaml:"message_limit"`
}
