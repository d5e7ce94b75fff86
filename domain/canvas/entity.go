package canvas

import (
	"errors"
	"unicode/utf8"
)

// Tool identifies how a stroke is applied to the surface.
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// OperationTypeStroke is the only committed operation type.
const OperationTypeStroke = "stroke"

// Validation constants
const (
	MaxStrokeWidth     = 200
	MaxColorLength     = 64
	MaxPointsPerBatch  = 2048
	MaxPointsPerStroke = 20000
)

// Validation errors
var (
	ErrInvalidTool   = errors.New("unknown drawing tool")
	ErrInvalidWidth  = errors.New("stroke width out of range")
	ErrInvalidColor  = errors.New("stroke color is empty or too long")
	ErrTooManyPoints = errors.New("too many points")
	ErrEmptyStroke   = errors.New("stroke has no points")
)

// Point is a coordinate on the drawing surface.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StrokeStyle describes how a stroke is rendered.
type StrokeStyle struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Tool  Tool    `json:"tool"`
}

// Normalize fills defaults and validates the style.
func (s StrokeStyle) Normalize() (StrokeStyle, error) {
	switch s.Tool {
	case "":
		s.Tool = ToolBrush
	case ToolBrush, ToolEraser:
	default:
		return s, ErrInvalidTool
	}
	if s.Width <= 0 || s.Width > MaxStrokeWidth {
		return s, ErrInvalidWidth
	}
	if s.Color == "" || len(s.Color) > MaxColorLength || !utf8.ValidString(s.Color) {
		return s, ErrInvalidColor
	}
	return s, nil
}

// Operation is one committed unit of room history.
// Its identity is its position in the log.
type Operation struct {
	Type      string      `json:"type"`
	Points    []Point     `json:"points"`
	Style     StrokeStyle `json:"style"`
	Timestamp int64       `json:"timestamp"`
}

// NewStroke builds a stroke operation stamped with timestamp (epoch ms).
func NewStroke(points []Point, style StrokeStyle, timestamp int64) (Operation, error) {
	if len(points) == 0 {
		return Operation{}, ErrEmptyStroke
	}
	if len(points) > MaxPointsPerStroke {
		return Operation{}, ErrTooManyPoints
	}
	style, err := style.Normalize()
	if err != nil {
		return Operation{}, err
	}
	return Operation{
		Type:      OperationTypeStroke,
		Points:    ClonePoints(points),
		Style:     style,
		Timestamp: timestamp,
	}, nil
}

// Clone returns a deep copy of the operation.
func (o Operation) Clone() Operation {
	o.Points = ClonePoints(o.Points)
	return o
}

// Equal reports whether two operations carry the same content.
func (o Operation) Equal(other Operation) bool {
	if o.Type != other.Type || o.Style != other.Style || o.Timestamp != other.Timestamp {
		return false
	}
	if len(o.Points) != len(other.Points) {
		return false
	}
	for i := range o.Points {
		if o.Points[i] != other.Points[i] {
			return false
		}
	}
	return true
}

// CloneOperations deep-copies a sequence of operations.
func CloneOperations(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = op.Clone()
	}
	return out
}

// ClonePoints copies a point slice. A nil input yields an empty slice.
func ClonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}

// User is a participant of exactly one room for the lifetime of its connection.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
