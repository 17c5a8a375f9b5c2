package nn

import (
	"github.com/chewxy/math32"
)

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Create a Rect from two corners, in any order
func RectFromCorners(x1, y1, x2, y2 int) Rect {
	return Rect{
		X:      min(x1, x2),
		Y:      min(y1, y2),
		Width:  max(x1, x2) - min(x1, x2),
		Height: max(y1, y2) - min(y1, y2),
	}
}

// Create a Rect from floating point corners, such as the xyxy output of YOLO models.
// Coordinates are rounded down, same as an int() cast of a non-negative number.
func RectFromFloatCorners(x1, y1, x2, y2 float32) Rect {
	return RectFromCorners(int(math32.Floor(x1)), int(math32.Floor(y1)), int(math32.Floor(x2)), int(math32.Floor(y2)))
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X+r.Width, b.X+b.Width)
	y2 := min(r.Y+r.Height, b.Y+b.Height)
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b)
	union := r.Area() + b.Area() - intersection.Area()
	if union <= 0 {
		return 0
	}
	return float32(intersection.Area()) / float32(union)
}

// Clamp the rectangle so that it lies inside an image of the given size
func (r Rect) Clamp(width, height int) Rect {
	x1 := min(max(r.X, 0), width)
	y1 := min(max(r.Y, 0), height)
	x2 := min(max(r.X2(), 0), width)
	y2 := min(max(r.Y2(), 0), height)
	return RectFromCorners(x1, y1, x2, y2)
}
