// ABOUTME: cat_fact tool fetching from catfact.ninja with an offline fallback
// ABOUTME: Never fails on upstream trouble; reports online=false with the reason instead

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/mcp-runtime/internal/tools"
)

var offlineCatFacts = map[string][]string{
	"short": {
		"Cats sleep 12-16 hours per day.",
		"A group of cats is called a clowder.",
		"Cats have five toes on front paws, four on back.",
		"Cats can't taste sweetness.",
		"Cats have 32 muscles in each ear.",
	},
	"medium": {
		"Cats have been domesticated for roughly 9,000 years, first kept near grain stores where they hunted the rodents that gathered there.",
		"Cats make about 100 different sounds, while dogs make only about 10, ranging from meows and purrs to trills and hisses.",
		"The technical term for a cat's hairball is a bezoar. It forms from loose fur swallowed while the cat grooms itself.",
	},
	"long": {
		"The ability of cats to land on their feet is called the righting reflex. It is fully developed by about seven weeks of age. During a fall a cat uses its inner ear to find which way is up, then rotates its flexible spine so the front half turns first and the back half follows. Cats need a minimum fall distance to complete the turn, so very short falls can be more dangerous than moderate ones.",
		"Cats have a sense of smell many times stronger than that of humans. They also have a vomeronasal organ in the roof of the mouth that lets them sample scents. A cat sniffing with its mouth slightly open is using this organ, a behaviour called the flehmen response, which helps it detect pheromones and identify other cats.",
	},
}

func (h *handlers) catFactTool() tools.Tool {
	return tools.Tool{
		Name:        "cat_fact",
		Description: "Get a random cat fact from an external API with offline fallback",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"length": {
				Type:        "string",
				Description: "Preferred length of the cat fact",
				Enum:        []any{"short", "medium", "long", "any"},
				Default:     defaultValue("any"),
			},
		}),
		Handler: h.CatFact,
	}
}

type catFactArgs struct {
	Length string `json:"length"`
}

// CatFact returns a cat fact, preferring the live API.
func (h *handlers) CatFact(ctx context.Context, args json.RawMessage) (any, error) {
	in, err := decodeArgs[catFactArgs](args)
	if err != nil {
		return nil, err
	}
	if in.Length == "" {
		in.Length = "any"
	}

	fact, err := h.fetchCatFact(ctx)
	if err != nil {
		h.logger.Warn("cat fact API unavailable, using offline fallback", "error", err)
		offline := offlineCatFact(in.Length)
		return map[string]any{
			"fact":             offline,
			"length":           len(offline),
			"source":           "offline_fallback",
			"timestamp":        h.timestamp(),
			"requested_length": in.Length,
			"online":           false,
			"fallback_reason":  err.Error(),
		}, nil
	}

	if !matchesLength(fact, in.Length) {
		fact = offlineCatFact(in.Length)
	}

	return map[string]any{
		"fact":             fact,
		"length":           len(fact),
		"source":           "catfact.ninja",
		"timestamp":        h.timestamp(),
		"requested_length": in.Length,
		"online":           true,
	}, nil
}

func (h *handlers) fetchCatFact(ctx context.Context) (string, error) {
	resp, err := h.get(ctx, strings.TrimRight(h.cfg.CatFactURL, "/")+"/fact", nil)
	if err != nil {
		return "", err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return "", fmt.Errorf("API responded with status %d", resp.Status)
	}

	var body struct {
		Fact string `json:"fact"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Fact == "" {
		return "", fmt.Errorf("invalid response format from API")
	}
	return body.Fact, nil
}

func matchesLength(fact, length string) bool {
	n := len(fact)
	switch length {
	case "short":
		return n <= 100
	case "medium":
		return n > 100 && n <= 200
	case "long":
		return n > 200
	default:
		return true
	}
}

func offlineCatFact(length string) string {
	facts, ok := offlineCatFacts[length]
	if !ok {
		for _, k := range []string{"short", "medium", "long"} {
			facts = append(facts, offlineCatFacts[k]...)
		}
	}
	return facts[rand.IntN(len(facts))]
}
