package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"github.com/pixil98/ubichill/internal/presence"
	"github.com/pixil98/ubichill/internal/world"
)

const (
	MinCoordinate = -10000
	MaxCoordinate = 100000

	MaxDisplayName = 50
	MaxInstanceKey = 100
	MaxEntityType  = 100
)

var instanceKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())

	_ = val.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field()
		if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
			return false
		}
		return !math.IsNaN(f.Float()) && !math.IsInf(f.Float(), 0)
	})
	_ = val.RegisterValidation("instancekey", func(fl validator.FieldLevel) bool {
		return instanceKeyPattern.MatchString(fl.Field().String())
	})

	return val
}

type displayNameInput struct {
	Name string `validate:"min=1,max=50"`
}

type instanceKeyInput struct {
	Key string `validate:"min=1,max=100,instancekey"`
}

type positionInput struct {
	X float64 `validate:"finite,gte=-10000,lte=100000"`
	Y float64 `validate:"finite,gte=-10000,lte=100000"`
}

type statusInput struct {
	Status string `validate:"oneof=online away busy offline"`
}

type cursorStateInput struct {
	State string `validate:"oneof=default pointer text wait help not-allowed move grabbing"`
}

type transformInput struct {
	X        float64 `validate:"finite"`
	Y        float64 `validate:"finite"`
	Z        float64 `validate:"finite"`
	W        float64 `validate:"finite"`
	H        float64 `validate:"finite"`
	Scale    float64 `validate:"finite"`
	Rotation float64 `validate:"finite"`
}

type entityInput struct {
	Type      string `validate:"required,max=100"`
	Transform transformInput
}

type entityIDInput struct {
	ID string `validate:"required,max=200"`
}

// DisplayName trims and NFC-normalizes name, returning the normalized value.
func DisplayName(name string) (string, error) {
	normalized := norm.NFC.String(strings.TrimSpace(name))
	if err := v.Struct(displayNameInput{Name: normalized}); err != nil {
		return "", userError(err, "name")
	}
	return normalized, nil
}

// InstanceKey checks a room, world or instance identifier.
func InstanceKey(key string) error {
	if err := v.Struct(instanceKeyInput{Key: key}); err != nil {
		return userError(err, "instance id")
	}
	return nil
}

func Position(pos presence.Position) error {
	if err := v.Struct(positionInput{X: pos.X, Y: pos.Y}); err != nil {
		return userError(err, "position")
	}
	return nil
}

func Status(status string) (presence.Status, error) {
	if err := v.Struct(statusInput{Status: status}); err != nil {
		return "", userError(err, "status")
	}
	return presence.Status(status), nil
}

func CursorState(state string) (presence.CursorState, error) {
	if err := v.Struct(cursorStateInput{State: state}); err != nil {
		return "", userError(err, "cursor state")
	}
	return presence.CursorState(state), nil
}

// Entity checks the parts of an entity the server relies on. Data is opaque
// and never inspected.
func Entity(e world.Entity) error {
	t := e.Transform
	in := entityInput{
		Type: e.Type,
		Transform: transformInput{
			X: t.X, Y: t.Y, Z: t.Z, W: t.W, H: t.H, Scale: t.Scale, Rotation: t.Rotation,
		},
	}
	if err := v.Struct(in); err != nil {
		return userError(err, "entity")
	}
	return nil
}

func EntityID(id string) error {
	if err := v.Struct(entityIDInput{ID: id}); err != nil {
		return userError(err, "entity id")
	}
	return nil
}

// Patch rejects non-finite transform values in p.
func Patch(p world.Patch) error {
	if p.Transform == nil {
		return nil
	}
	for _, f := range p.Transform.Values() {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &Error{Field: "transform", Message: "transform values must be finite numbers"}
		}
	}
	return nil
}

func userError(err error, field string) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return &Error{Field: field, Message: fmt.Sprintf("invalid %s", field)}
	}
	return &Error{Field: field, Message: message(field, ves[0])}
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("%s is required", field)
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "instancekey":
		return fmt.Sprintf("%s may only contain letters, digits, hyphens and underscores", field)
	case "finite":
		return fmt.Sprintf("%s must be a finite number", field)
	case "gte", "lte":
		return fmt.Sprintf("%s must be between %d and %d", field, MinCoordinate, MaxCoordinate)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("invalid %s", field)
	}
}
