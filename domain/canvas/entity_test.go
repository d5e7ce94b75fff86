package canvas

import (
	"errors"
	"strings"
	"testing"
)

func TestStrokeStyle_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		style    StrokeStyle
		wantTool Tool
		wantErr  error
	}{
		{
			name:     "brush",
			style:    StrokeStyle{Color: "#000", Width: 3, Tool: ToolBrush},
			wantTool: ToolBrush,
		},
		{
			name:     "eraser",
			style:    StrokeStyle{Color: "#fff", Width: 20, Tool: ToolEraser},
			wantTool: ToolEraser,
		},
		{
			name:     "empty tool defaults to brush",
			style:    StrokeStyle{Color: "red", Width: 1},
			wantTool: ToolBrush,
		},
		{
			name:    "unknown tool",
			style:   StrokeStyle{Color: "red", Width: 1, Tool: "spray"},
			wantErr: ErrInvalidTool,
		},
		{
			name:    "zero width",
			style:   StrokeStyle{Color: "red", Width: 0},
			wantErr: ErrInvalidWidth,
		},
		{
			name:    "width too large",
			style:   StrokeStyle{Color: "red", Width: MaxStrokeWidth + 1},
			wantErr: ErrInvalidWidth,
		},
		{
			name:    "empty color",
			style:   StrokeStyle{Width: 2},
			wantErr: ErrInvalidColor,
		},
		{
			name:    "color too long",
			style:   StrokeStyle{Color: strings.Repeat("a", MaxColorLength+1), Width: 2},
			wantErr: ErrInvalidColor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.style.Normalize()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() unexpected error: %v", err)
			}
			if got.Tool != tt.wantTool {
				t.Errorf("Normalize() tool = %q, want %q", got.Tool, tt.wantTool)
			}
		})
	}
}

func TestNewStroke(t *testing.T) {
	style := StrokeStyle{Color: "#123456", Width: 4, Tool: ToolBrush}

	if _, err := NewStroke(nil, style, 1); !errors.Is(err, ErrEmptyStroke) {
		t.Errorf("NewStroke(nil) error = %v, want %v", err, ErrEmptyStroke)
	}

	tooMany := make([]Point, MaxPointsPerStroke+1)
	if _, err := NewStroke(tooMany, style, 1); !errors.Is(err, ErrTooManyPoints) {
		t.Errorf("NewStroke(too many) error = %v, want %v", err, ErrTooManyPoints)
	}

	points := []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	op, err := NewStroke(points, style, 42)
	if err != nil {
		t.Fatalf("NewStroke() unexpected error: %v", err)
	}
	if op.Type != OperationTypeStroke {
		t.Errorf("NewStroke() type = %q, want %q", op.Type, OperationTypeStroke)
	}
	if op.Timestamp != 42 {
		t.Errorf("NewStroke() timestamp = %d, want 42", op.Timestamp)
	}

	points[0].X = 100
	if op.Points[0].X != 1 {
		t.Error("NewStroke() must not alias the caller's points")
	}
}

func TestOperation_Clone(t *testing.T) {
	op := Operation{
		Type:      OperationTypeStroke,
		Points:    []Point{{X: 1, Y: 1}},
		Style:     StrokeStyle{Color: "red", Width: 1, Tool: ToolBrush},
		Timestamp: 7,
	}

	clone := op.Clone()
	if !clone.Equal(op) {
		t.Fatal("Clone() should equal the original")
	}

	clone.Points[0].Y = 99
	if op.Points[0].Y != 1 {
		t.Error("Clone() shares point storage with the original")
	}
	if clone.Equal(op) {
		t.Error("Equal() should detect differing points")
	}
}
