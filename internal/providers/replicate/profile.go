package replicate

import (
	"fmt"
	"strings"

	"poster/internal/domain"
)

// Profile describes one way of invoking the stylisation model: which model
// version, which prompt and generation parameters, and how the input image is
// prepared. Profiles are values; callers may copy and tweak them.
type Profile struct {
	Name       string
	ModelOwner string
	ModelName  string
	Version    string
	Prompt     string
	// ImageField is the input key the model expects the image under.
	ImageField string
	Params     map[string]any
	// MaxEdge, when positive, shrinks the input to fit this long edge and
	// re-encodes it as JPEG at JPEGQuality before submission.
	MaxEdge     int
	JPEGQuality int
	// RetryOnMemory enables the whole-cycle retry on GPU memory exhaustion.
	RetryOnMemory bool
}

const (
	kontextVersion = "0f1178f5a27e9aa2d2d39c8a43c110f7fa7cbf64062ff04a04cd40899e546065"
	fluxDevVersion = "f2ab8a5bfe79f02f0dde7a32f8c5b1ef0c2e6f14f5e2e3ae885ffcab126d6253"
)

// PrimaryProfile is the default headshot stylisation on FLUX Kontext Pro.
func PrimaryProfile() Profile {
	return Profile{
		Name:          "flux-kontext-pro",
		ModelOwner:    "black-forest-labs",
		ModelName:     "flux-kontext-pro",
		Version:       kontextVersion,
		Prompt:        "Make this a greyscale cartoon sketch with silhouette style, remove facial features from headshot and keep everything else",
		ImageField:    "input_image",
		RetryOnMemory: true,
	}
}

// FallbackProfile is the lower-cost FLUX Dev profile used once the primary
// model has run out of GPU memory. It shrinks the input further and never
// retries on memory errors itself.
func FallbackProfile() Profile {
	return Profile{
		Name:       "flux-dev",
		ModelOwner: "black-forest-labs",
		ModelName:  "flux-dev",
		Version:    fluxDevVersion,
		Prompt:     "transform into black and white cartoon sketch drawing, pencil sketch, line art, high contrast, simple silhouette style",
		ImageField: "image",
		Params: map[string]any{
			"prompt_strength":     0.8,
			"num_outputs":         1,
			"num_inference_steps": 28,
			"guidance_scale":      3.5,
			"output_format":       "jpeg",
			"output_quality":      80,
		},
		MaxEdge:     768,
		JPEGQuality: 70,
	}
}

// EditProfile runs a free-form edit instruction against FLUX Kontext Pro.
func EditProfile(prompt string) Profile {
	p := PrimaryProfile()
	p.Name = "flux-kontext-pro-edit"
	p.Prompt = prompt
	p.RetryOnMemory = false
	return p
}

// kontextAspectRatios lists the aspect_ratio values FLUX Kontext accepts.
var kontextAspectRatios = map[string]bool{
	"match_input_image": true,
	"1:1":               true,
	"16:9":              true,
	"9:16":              true,
	"21:9":              true,
	"9:21":              true,
	"3:2":               true,
	"2:3":               true,
	"4:3":               true,
	"3:4":               true,
	"4:5":               true,
	"5:4":               true,
}

// WithAspectRatio returns a copy of p that asks for the given output ratio.
// An empty ratio leaves the model default in place.
func (p Profile) WithAspectRatio(ratio string) (Profile, error) {
	ratio = strings.TrimSpace(ratio)
	if ratio == "" {
		return p, nil
	}
	if !kontextAspectRatios[ratio] {
		return p, fmt.Errorf("%w: %q", domain.ErrInvalidRatio, ratio)
	}
	params := make(map[string]any, len(p.Params)+1)
	for k, v := range p.Params {
		params[k] = v
	}
	params["aspect_ratio"] = ratio
	p.Params = params
	return p, nil
}

func (p Profile) input(imageRef string, seed *int) map[string]any {
	input := make(map[string]any, len(p.Params)+3)
	for k, v := range p.Params {
		input[k] = v
	}
	input["prompt"] = p.Prompt
	field := p.ImageField
	if field == "" {
		field = "image"
	}
	input[field] = imageRef
	if seed != nil {
		input["seed"] = *seed
	}
	return input
}
