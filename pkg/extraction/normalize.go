package extraction

import "strings"

// NormalizeKey canonicalizes an entity's display text into its
// deduplication key: lowercased and trimmed. Two spans with equal keys
// refer to the same entity regardless of original casing or spacing.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// categoryRule pairs a category name with its term list. Rule order
// matters: the first matching rule wins.
type categoryRule struct {
	category string
	terms    []string
}

var technologyRules = []categoryRule{
	// Databases come before languages so names like "postgresql" are not
	// claimed by the "sql" language term.
	{"database", []string{
		"postgres", "postgresql", "mysql", "sqlite", "mongodb", "redis",
		"milvus", "kuzu", "neo4j", "elasticsearch", "cassandra", "dynamodb",
		"clickhouse", "qdrant",
	}},
	{"programming_language", []string{
		"python", "javascript", "typescript", "golang", "go", "rust",
		"java", "ruby", "c++", "c#", "php", "swift", "kotlin", "scala",
		"haskell", "elixir", "sql",
	}},
	{"framework", []string{
		"react", "vue", "angular", "django", "flask", "rails", "spring",
		"express", "laravel", "fastapi", "svelte", "pytorch", "tensorflow",
	}},
	{"infrastructure", []string{
		"docker", "kubernetes", "terraform", "ansible", "nginx", "aws",
		"azure", "gcp", "linux", "git", "jenkins", "grafana", "prometheus",
	}},
}

var topicRules = []categoryRule{
	{"ai_ml", []string{
		"machine learning", "deep learning", "neural", "llm", "ai",
		"embedding", "transformer", "nlp", "model training", "rag",
	}},
	{"web_development", []string{
		"frontend", "backend", "web", "api", "http", "css", "html",
		"rest", "graphql",
	}},
	{"business", []string{
		"startup", "marketing", "revenue", "customer", "product",
		"sales", "strategy", "funding",
	}},
	{"design", []string{
		"design", "ux", "ui", "typography", "layout", "accessibility",
		"wireframe",
	}},
}

// termMatches reports whether a normalized key matches a vocabulary term.
// Short terms (one or two characters, e.g. "go", "ai") match only exactly
// to avoid spurious substring hits; longer terms match by substring
// membership.
func termMatches(key, term string) bool {
	if key == term {
		return true
	}
	return len(term) > 2 && strings.Contains(key, term)
}

func matchCategory(key string, rules []categoryRule) (string, bool) {
	for _, rule := range rules {
		for _, term := range rule.terms {
			if termMatches(key, term) {
				return rule.category, true
			}
		}
	}
	return "", false
}

// CategorizeTechnology assigns a semantic subcategory to a technology
// entity. First matching rule wins; falls back to "tool".
func CategorizeTechnology(text string) string {
	if category, ok := matchCategory(NormalizeKey(text), technologyRules); ok {
		return category
	}
	return "tool"
}

// CategorizeTopic assigns a semantic subcategory to a topic entity.
// First matching rule wins; falls back to "general".
func CategorizeTopic(text string) string {
	if category, ok := matchCategory(NormalizeKey(text), topicRules); ok {
		return category
	}
	return "general"
}

// IsTechnologyTerm decides whether an ambiguously labeled span should be
// routed to the Technology variant rather than Topic, by membership in
// the curated technology vocabulary.
//
// This is a fixed keyword check, not a learned classifier: unseen
// technologies route to Topic, and a person named after a technology
// routes to Technology. That limitation is accepted as-is.
func IsTechnologyTerm(text string) bool {
	_, ok := matchCategory(NormalizeKey(text), technologyRules)
	return ok
}
