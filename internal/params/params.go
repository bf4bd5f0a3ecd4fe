package params

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Defaults applied to any missing or unparseable query parameter.
const (
	DefaultModel          = "flux"
	DefaultWidth          = 1024
	DefaultHeight         = 1024
	DefaultSeed           = 42
	DefaultNegativePrompt = "worst quality, blurry"
	DefaultQuality        = "medium"
)

// BypassHeader disables both cache tiers for a single request when present.
const BypassHeader = "no-cache"

// CanonicalRequest is the normalized, fully-defaulted parameter set for one
// generation request. Two requests are equivalent for exact-cache purposes
// iff their CanonicalRequest values are identical.
type CanonicalRequest struct {
	Prompt         string
	Model          string
	Width          int
	Height         int
	Seed           int
	NegativePrompt string
	Quality        string
	Enhance        bool
	NoLogo         bool
	Safe           bool
	NoFeed         bool
	ReferenceImage string
}

// FromRequest normalizes an incoming HTTP request. The prompt is carried in
// the URL path after /prompt/; everything else comes from the query string.
// Parsing is total: bad values fall back to defaults, never error.
func FromRequest(r *http.Request) CanonicalRequest {
	prompt := chi.URLParam(r, "*")
	if decoded, err := url.PathUnescape(prompt); err == nil {
		prompt = decoded
	}

	return FromValues(prompt, r.URL.Query())
}

// FromValues normalizes a prompt plus raw query values.
func FromValues(prompt string, q url.Values) CanonicalRequest {
	return CanonicalRequest{
		Prompt:         strings.TrimSpace(prompt),
		Model:          stringParam(q, "model", DefaultModel),
		Width:          dimensionParam(q, "width", DefaultWidth),
		Height:         dimensionParam(q, "height", DefaultHeight),
		Seed:           intParam(q, "seed", DefaultSeed),
		NegativePrompt: stringParam(q, "negative_prompt", DefaultNegativePrompt),
		Quality:        stringParam(q, "quality", DefaultQuality),
		Enhance:        boolParam(q, "enhance"),
		NoLogo:         boolParam(q, "nologo"),
		Safe:           boolParam(q, "safe"),
		NoFeed:         boolParam(q, "nofeed"),
		ReferenceImage: strings.TrimSpace(q.Get("image")),
	}
}

// Values renders the canonical request back into query values, prompt
// excluded. Used when forwarding a miss to the origin generator.
func (c CanonicalRequest) Values() url.Values {
	v := url.Values{}
	v.Set("model", c.Model)
	v.Set("width", strconv.Itoa(c.Width))
	v.Set("height", strconv.Itoa(c.Height))
	v.Set("seed", strconv.Itoa(c.Seed))
	v.Set("negative_prompt", c.NegativePrompt)
	v.Set("quality", c.Quality)
	if c.Enhance {
		v.Set("enhance", "true")
	}
	if c.NoLogo {
		v.Set("nologo", "true")
	}
	if c.Safe {
		v.Set("safe", "true")
	}
	if c.NoFeed {
		v.Set("nofeed", "true")
	}
	if c.ReferenceImage != "" {
		v.Set("image", c.ReferenceImage)
	}
	return v
}

func stringParam(q url.Values, key, def string) string {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def
	}
	return v
}

func intParam(q url.Values, key string, def int) int {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// dimensionParam is intParam restricted to positive values; a zero-sized
// image is never a valid request.
func dimensionParam(q url.Values, key string, def int) int {
	n := intParam(q, key, def)
	if n <= 0 {
		return def
	}
	return n
}

// boolParam is true only for the literal string "true".
func boolParam(q url.Values, key string) bool {
	return q.Get(key) == "true"
}
