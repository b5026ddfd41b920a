package usage

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Tokenizer counts tokens with a fixed BPE encoding. Counting serves
// accounting and token rate limits, not exact backend billing, so one
// encoding for all models is acceptable.
type Tokenizer struct {
	encoding string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenizer(encoding string) *Tokenizer {
	return &Tokenizer{encoding: encoding}
}

// Count returns the token count of text, falling back to a rough
// character heuristic if the encoding cannot be loaded.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			fiberlog.Warnf("failed to load encoding %s, using heuristic counts: %v", t.encoding, err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return (len(text) + 3) / 4
	}
	return len(t.enc.Encode(text, nil, nil))
}
