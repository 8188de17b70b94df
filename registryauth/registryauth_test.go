package registryauth

import (
	"strings"
	"testing"
)

func TestForFallsBackToDefaultEndpoint(t *testing.T) {
	c := Empty()
	url, token := c.For("left-pad")
	if url != defaultEndpoint || token != "" {
		t.Fatalf("expected public default, got %s %s", url, token)
	}
}

func TestParseScopedAndDefaultEntries(t *testing.T) {
	data := `
[registries.default]
url = "https://registry.internal.example.com"
token = "deftoken"

[registries."@acme"]
url = "https://npm.acme.example.com"
token = "acmetoken"
`
	c, err := parse(strings.NewReader(data), "registry.toml")
	if err != nil {
		t.Fatal(err)
	}

	url, token := c.For("@acme/widgets")
	if url != "https://npm.acme.example.com" || token != "acmetoken" {
		t.Fatalf("expected scoped entry, got %s %s", url, token)
	}

	url, token = c.For("left-pad")
	if url != "https://registry.internal.example.com" || token != "deftoken" {
		t.Fatalf("expected default entry, got %s %s", url, token)
	}
}
