// internal/names/names_test.go
package names

import (
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := Generate()
		if name.Nickname == "" {
			t.Fatal("empty nickname")
		}
		if name.FullName == "" {
			t.Fatal("empty full name")
		}
		if !strings.Contains(name.FullName, name.Nickname) {
			t.Fatalf("full name %q does not contain nickname %q", name.FullName, name.Nickname)
		}
		if len(name.FullName) <= len(name.Nickname) {
			t.Fatalf("full name %q has no suffix", name.FullName)
		}
	}
}
