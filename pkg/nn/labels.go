package nn

import "fmt"

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Label      string  `json:"label"` // Lower-cased name of Class, from the model's class table
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

func (o ObjectDetection) String() string {
	return fmt.Sprintf("%v(%v) %.2f [%v,%v,%v,%v]", o.Label, o.Class, o.Confidence, o.Box.X, o.Box.Y, o.Box.X2(), o.Box.Y2())
}
