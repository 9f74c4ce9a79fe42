package cache

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/quayside/llmrelay/pkg/types"
)

// fieldSep delimits cacheable fields in the digest input. NUL cannot appear
// in a prompt that round-trips through JSON, so field boundaries are stable.
const fieldSep = "\x00"

// Fingerprint derives the cache key from a request's cacheable fields:
// prompt, max tokens, and temperature. Preferences and metadata are
// deliberately excluded so that routing hints never fragment the cache.
//
// xxhash is an identity key here, not a security boundary.
func Fingerprint(req *types.Request) string {
	var sb strings.Builder
	sb.Grow(len(req.Prompt) + 32)
	sb.WriteString(req.Prompt)
	sb.WriteString(fieldSep)
	sb.WriteString(strconv.Itoa(req.MaxTokens))
	sb.WriteString(fieldSep)
	sb.WriteString(strconv.FormatFloat(req.Temperature, 'f', -1, 64))

	return strconv.FormatUint(xxhash.Sum64String(sb.String()), 16)
}
