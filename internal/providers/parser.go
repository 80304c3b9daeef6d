package providers

import "strings"

// ProviderRef names one backend in a provider list. Lists look like
// "ollama:phi3:mini|openai:team|mock"; everything after the first colon is the
// alias, which for ollama is the model name and for hosted APIs is a key alias.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

func (r ProviderRef) String() string {
	return r.Raw
}

// ParseProviderList splits a "|"-separated provider list. An empty list means
// the offline mock.
func ParseProviderList(raw string) []ProviderRef {
	var out []ProviderRef
	for _, p := range strings.Split(raw, "|") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, alias, _ := strings.Cut(p, ":")
		out = append(out, ProviderRef{
			Raw:      p,
			Name:     strings.ToLower(strings.TrimSpace(name)),
			KeyAlias: strings.TrimSpace(alias),
		})
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}
