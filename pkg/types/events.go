package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// Event names, identical to the ones the browser client emits.
const (
	EventClientReady      = "client-ready"
	EventGetCanvasState   = "get-canvas-state"
	EventCanvasState      = "canvas-state"
	EventCanvasFromServer = "canvas-state-from-server"
	EventDrawLine         = "draw-line"
	EventClear            = "clear"
)

// MaxLineWidth bounds DrawEvent.LineWidth.
const MaxLineWidth = 512

// ErrInvalidEvent is returned for frames that fail to decode or validate.
var ErrInvalidEvent = errors.New("invalid event")

// Envelope is the JSON frame exchanged between peers and the hub.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	From      string          `json:"from,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Point is a pixel coordinate in canvas space.
type Point struct {
	X float64 `json:"x" validate:"finite"`
	Y float64 `json:"y" validate:"finite"`
}

// DrawEvent is one stroke segment. A nil PrevPoint starts a new stroke.
type DrawEvent struct {
	PrevPoint    *Point  `json:"prevPoint"`
	CurrentPoint Point   `json:"currentPoint"`
	Color        string  `json:"color" validate:"required,hexcolor"`
	LineWidth    float64 `json:"lineWidth" validate:"gt=0,lte=512"`
}

// drawEventWire mirrors DrawEvent with a pointer currentPoint so that a
// missing field can be told apart from the origin.
type drawEventWire struct {
	PrevPoint    *Point  `json:"prevPoint" validate:"omitempty"`
	CurrentPoint *Point  `json:"currentPoint" validate:"required"`
	Color        string  `json:"color" validate:"required,hexcolor"`
	LineWidth    float64 `json:"lineWidth" validate:"gt=0,lte=512"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// Validate checks ev against the protocol rules.
func (ev DrawEvent) Validate() error {
	if err := validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// NewEnvelope builds an envelope for event, marshalling payload into Data.
// A nil payload leaves Data empty.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("types: marshal %s payload: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// DrawEvent decodes and validates the envelope's draw-line payload.
func (e Envelope) DrawEvent() (DrawEvent, error) {
	if len(e.Data) == 0 {
		return DrawEvent{}, fmt.Errorf("%w: draw-line without data", ErrInvalidEvent)
	}
	var w drawEventWire
	if err := json.Unmarshal(e.Data, &w); err != nil {
		return DrawEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := validate.Struct(w); err != nil {
		return DrawEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	ev := DrawEvent{
		PrevPoint:    w.PrevPoint,
		CurrentPoint: *w.CurrentPoint,
		Color:        w.Color,
		LineWidth:    w.LineWidth,
	}
	return ev, nil
}

// Snapshot returns the encoded image carried by a canvas-state or
// canvas-state-from-server envelope. The image itself is not decoded.
func (e Envelope) Snapshot() (string, error) {
	if len(e.Data) == 0 {
		return "", fmt.Errorf("%w: %s without data", ErrInvalidEvent, e.Event)
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return "", fmt.Errorf("%w: %s payload is not a string", ErrInvalidEvent, e.Event)
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty %s payload", ErrInvalidEvent, e.Event)
	}
	return s, nil
}

// Known reports whether event is one of the protocol's event names.
func Known(event string) bool {
	switch event {
	case EventClientReady, EventGetCanvasState, EventCanvasState,
		EventCanvasFromServer, EventDrawLine, EventClear:
		return true
	}
	return false
}
