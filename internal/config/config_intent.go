package config

// IntentConfig configures the rule-first/LLM-fallback Intent Parser
// (spec.md §4.5 step 2).
type IntentConfig struct {
	// DirectExecuteThreshold is the weighted keyword score above which a
	// skill is dispatched without consulting the LLM.
	DirectExecuteThreshold float64 `yaml:"direct_execute_threshold"`

	// LLMConfirmThreshold is the lower score above which the LLM is asked
	// to classify with a short JSON schema; below it, the default skill
	// fires. DirectExecuteThreshold must be >= LLMConfirmThreshold.
	LLMConfirmThreshold float64 `yaml:"llm_confirm_threshold"`

	// DefaultSkill is dispatched when no score reaches LLMConfirmThreshold.
	DefaultSkill string `yaml:"default_skill"`

	// MaxHops bounds a chain trigger's ordered skill list (spec.md §4.5
	// step 2, "e.g., 2").
	MaxHops int `yaml:"max_hops"`

	// Skills maps a skill name to its weighted keyword set.
	Skills map[string]SkillIntentConfig `yaml:"skills"`

	// Chains maps a chain trigger pattern to the ordered skill names it
	// expands into (e.g. a query-then-summary phrase).
	Chains map[string][]string `yaml:"chains"`
}

// SkillIntentConfig is one skill's keyword-scoring configuration.
type SkillIntentConfig struct {
	Keywords map[string]float64 `yaml:"keywords"`
}
