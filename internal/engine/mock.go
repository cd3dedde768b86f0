package engine

import (
	"encoding/json"
	"fmt"

	"github.com/basket/astrobot/internal/scenario"
)

const mockListSize = 10

// MockResponse is the deterministic payload used when no client is
// configured: ten numbered items for list scenarios, a marker text otherwise.
func MockResponse(code string) string {
	var v map[string]any
	if scenario.SlotFor(code).IsList() {
		items := make([]string, mockListSize)
		for i := range items {
			items[i] = fmt.Sprintf("%s %d", code, i+1)
		}
		v = map[string]any{"items": items}
	} else {
		v = map[string]any{"text": code + " (mock)"}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
