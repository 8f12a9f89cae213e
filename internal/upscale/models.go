package upscale

import (
	"fmt"
	"strings"
)

// Model names one of the neural network weights shipped with the upscaler
// binary.
type Model string

const (
	ModelAnimeVideoV3 Model = "realesr-animevideov3"
	ModelX4Plus       Model = "realesrgan-x4plus"
	ModelX4PlusAnime  Model = "realesrgan-x4plus-anime"
	ModelNetX4Plus    Model = "realesrnet-x4plus"
)

// Models lists the supported model names in display order.
func Models() []Model {
	return []Model{
		ModelAnimeVideoV3,
		ModelX4Plus,
		ModelX4PlusAnime,
		ModelNetX4Plus,
	}
}

// ParseModel validates a model name supplied over the API.
func ParseModel(raw string) (Model, error) {
	name := Model(strings.TrimSpace(raw))
	for _, m := range Models() {
		if m == name {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported model: %q", raw)
}

// Scales lists the supported integer scale factors.
func Scales() []int {
	return []int{2, 3, 4}
}

// ValidScale reports whether n is a supported scale factor.
func ValidScale(n int) bool {
	for _, s := range Scales() {
		if s == n {
			return true
		}
	}
	return false
}
