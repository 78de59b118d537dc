package search

import "fmt"

// NewProvider returns the provider registered under name ("exa" or "arxiv").
func NewProvider(name, exaAPIKey string) (Provider, error) {
	switch name {
	case "", "exa":
		return NewExaProvider(exaAPIKey), nil
	case "arxiv":
		return NewArxivProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported search api: %s", name)
	}
}
