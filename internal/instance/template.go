package instance

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/ubichill/internal/world"
)

const (
	DefaultTemplateID = "default"

	DefaultCapacity    = 10
	DefaultMaxCapacity = 20

	DefaultBackgroundColor = "#F0F8FF"
	DefaultWorldWidth      = 2000
	DefaultWorldHeight     = 1500

	maxInitialEntities = 500
	maxTextLength      = 1000
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// WorldSpec is the body of a world template file.
type WorldSpec struct {
	DisplayName     string          `json:"displayName" yaml:"displayName"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Thumbnail       string          `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Capacity        *Capacity       `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Environment     *Environment    `json:"environment,omitempty" yaml:"environment,omitempty"`
	Dependencies    []Dependency    `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	InitialEntities []InitialEntity `json:"initialEntities,omitempty" yaml:"initialEntities,omitempty"`
}

type Capacity struct {
	Default int `json:"default" yaml:"default"`
	Max     int `json:"max" yaml:"max"`
}

type Environment struct {
	BackgroundColor string    `json:"backgroundColor" yaml:"backgroundColor"`
	BackgroundImage *string   `json:"backgroundImage" yaml:"backgroundImage"`
	BGM             *string   `json:"bgm" yaml:"bgm"`
	WorldSize       WorldSize `json:"worldSize" yaml:"worldSize"`
}

type WorldSize struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

type Dependency struct {
	Name   string           `json:"name" yaml:"name"`
	Source DependencySource `json:"source" yaml:"source"`
}

type DependencySource struct {
	Type    string `json:"type" yaml:"type"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// InitialEntity is an entity seeded into every new instance of a template.
// Kind becomes the entity type.
type InitialEntity struct {
	Kind      string           `json:"kind" yaml:"kind"`
	Transform InitialTransform `json:"transform" yaml:"transform"`
	Data      map[string]any   `json:"data,omitempty" yaml:"data,omitempty"`
}

type InitialTransform struct {
	X        float64  `json:"x" yaml:"x"`
	Y        float64  `json:"y" yaml:"y"`
	Z        float64  `json:"z" yaml:"z"`
	W        *float64 `json:"w,omitempty" yaml:"w,omitempty"`
	H        *float64 `json:"h,omitempty" yaml:"h,omitempty"`
	Scale    *float64 `json:"scale,omitempty" yaml:"scale,omitempty"`
	Rotation float64  `json:"rotation" yaml:"rotation"`
}

func (s *WorldSpec) Validate() error {
	el := errors.NewErrorList()

	if s.DisplayName == "" {
		el.Add(fmt.Errorf("displayName is required"))
	}
	el.Add(checkText("displayName", s.DisplayName))
	el.Add(checkText("description", s.Description))

	if s.Capacity != nil {
		if s.Capacity.Default <= 0 {
			el.Add(fmt.Errorf("capacity.default must be positive"))
		}
		if s.Capacity.Max <= 0 {
			el.Add(fmt.Errorf("capacity.max must be positive"))
		}
	}

	if s.Environment != nil {
		if s.Environment.BackgroundColor != "" && !hexColorPattern.MatchString(s.Environment.BackgroundColor) {
			el.Add(fmt.Errorf("environment.backgroundColor must be a hex color"))
		}
		if s.Environment.WorldSize.Width < 0 || s.Environment.WorldSize.Height < 0 {
			el.Add(fmt.Errorf("environment.worldSize must be positive"))
		}
	}

	for i, d := range s.Dependencies {
		if d.Name == "" {
			el.Add(fmt.Errorf("dependency %d: name is required", i))
		}
		switch d.Source.Type {
		case "repository", "npm", "url":
		default:
			el.Add(fmt.Errorf("dependency %d: unknown source type %q", i, d.Source.Type))
		}
	}

	if len(s.InitialEntities) > maxInitialEntities {
		el.Add(fmt.Errorf("at most %d initialEntities are allowed", maxInitialEntities))
	}
	for i, e := range s.InitialEntities {
		if e.Kind == "" {
			el.Add(fmt.Errorf("initialEntities %d: kind is required", i))
		}
		for name, v := range map[string]*float64{"w": e.Transform.W, "h": e.Transform.H, "scale": e.Transform.Scale} {
			if v != nil && *v <= 0 {
				el.Add(fmt.Errorf("initialEntities %d: %s must be positive", i, name))
			}
		}
	}

	return el.Err()
}

func checkText(field, s string) error {
	if len(s) > maxTextLength {
		return fmt.Errorf("%s must be at most %d characters", field, maxTextLength)
	}
	if strings.Contains(strings.ToLower(s), "<script") {
		return fmt.Errorf("%s must not contain script tags", field)
	}
	return nil
}

// Template is a resolved world template with every default applied.
type Template struct {
	ID              string          `json:"id"`
	Version         string          `json:"version"`
	DisplayName     string          `json:"displayName"`
	Description     string          `json:"description,omitempty"`
	Thumbnail       string          `json:"thumbnail,omitempty"`
	Capacity        Capacity        `json:"capacity"`
	Environment     Environment     `json:"environment"`
	Dependencies    []Dependency    `json:"dependencies,omitempty"`
	InitialEntities []InitialEntity `json:"-"`
}

// Resolve applies defaults to spec and names the result id.
func Resolve(id, version string, spec *WorldSpec) *Template {
	t := &Template{
		ID:              id,
		Version:         version,
		DisplayName:     spec.DisplayName,
		Description:     spec.Description,
		Thumbnail:       spec.Thumbnail,
		Capacity:        Capacity{Default: DefaultCapacity, Max: DefaultMaxCapacity},
		Environment:     DefaultEnvironment(),
		Dependencies:    spec.Dependencies,
		InitialEntities: spec.InitialEntities,
	}

	if spec.Capacity != nil {
		t.Capacity = *spec.Capacity
	}

	if env := spec.Environment; env != nil {
		if env.BackgroundColor != "" {
			t.Environment.BackgroundColor = env.BackgroundColor
		}
		t.Environment.BackgroundImage = env.BackgroundImage
		t.Environment.BGM = env.BGM
		if env.WorldSize.Width > 0 {
			t.Environment.WorldSize.Width = env.WorldSize.Width
		}
		if env.WorldSize.Height > 0 {
			t.Environment.WorldSize.Height = env.WorldSize.Height
		}
	}

	return t
}

// DependencyNames returns the plugin names this template activates.
func (t *Template) DependencyNames() []string {
	names := make([]string, 0, len(t.Dependencies))
	for _, d := range t.Dependencies {
		names = append(names, d.Name)
	}
	return names
}

// SeedEntities converts the template's initial entities to store records.
func (t *Template) SeedEntities() []world.Entity {
	out := make([]world.Entity, 0, len(t.InitialEntities))
	for _, ie := range t.InitialEntities {
		data := maps.Clone(ie.Data)
		if data == nil {
			data = map[string]any{}
		}
		out = append(out, world.Entity{
			Type: ie.Kind,
			Transform: world.Transform{
				X:        ie.Transform.X,
				Y:        ie.Transform.Y,
				Z:        ie.Transform.Z,
				W:        valueOr(ie.Transform.W, 100),
				H:        valueOr(ie.Transform.H, 100),
				Scale:    valueOr(ie.Transform.Scale, 1),
				Rotation: ie.Transform.Rotation,
			},
			Data: data,
		})
	}
	return out
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func DefaultEnvironment() Environment {
	return Environment{
		BackgroundColor: DefaultBackgroundColor,
		WorldSize:       WorldSize{Width: DefaultWorldWidth, Height: DefaultWorldHeight},
	}
}

// DefaultTemplate is registered when no template files are available.
func DefaultTemplate() *Template {
	return &Template{
		ID:          DefaultTemplateID,
		Version:     "1.0.0",
		DisplayName: "Default World",
		Description: "Shared collaboration space",
		Capacity:    Capacity{Default: DefaultCapacity, Max: DefaultMaxCapacity},
		Environment: DefaultEnvironment(),
		Dependencies: []Dependency{
			{Name: "pen:pen", Source: DependencySource{Type: "repository", Path: "plugins/pen"}},
			{Name: "video-player", Source: DependencySource{Type: "repository", Path: "plugins/video-player"}},
			{Name: "avatar", Source: DependencySource{Type: "repository", Path: "plugins/avatar"}},
		},
	}
}
