package nn

import "fmt"

// ModelVariant selects the detector weights.
// There is only one pipeline; the variant trades accuracy for speed.
type ModelVariant string

const (
	ModelVariantCompact  ModelVariant = "compact"  // yolov8n
	ModelVariantStandard ModelVariant = "standard" // yolov8s
)

const DefaultModelVariant = ModelVariantStandard

func ParseModelVariant(s string) (ModelVariant, error) {
	switch ModelVariant(s) {
	case "":
		return DefaultModelVariant, nil
	case ModelVariantCompact, ModelVariantStandard:
		return ModelVariant(s), nil
	}
	return "", fmt.Errorf("Invalid model variant '%v'. Valid values are '%v' and '%v'", s, ModelVariantCompact, ModelVariantStandard)
}

// Weights returns the name of the weights file that the inference server loads for this variant
func (v ModelVariant) Weights() string {
	switch v {
	case ModelVariantCompact:
		return "yolov8n.pt"
	default:
		return "yolov8s.pt"
	}
}

// ModelName is the weights name without the extension, eg "yolov8s"
func (v ModelVariant) ModelName() string {
	w := v.Weights()
	return w[:len(w)-len(".pt")]
}
