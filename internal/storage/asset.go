package storage

import (
	"fmt"
	"regexp"

	"github.com/pixil98/go-errors"
)

const APIVersion = "ubichill.com/v1alpha1"

var (
	identifierPattern = regexp.MustCompile(`^[a-z0-9-]{1,50}$`)
	versionPattern    = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

type ValidatingSpec interface {
	Validate() error
}

type Metadata struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// Asset is one definition file: a kind, its metadata and a typed spec.
type Asset[T ValidatingSpec] struct {
	APIVersion string   `json:"apiVersion" yaml:"apiVersion"`
	Kind       string   `json:"kind" yaml:"kind"`
	Metadata   Metadata `json:"metadata" yaml:"metadata"`
	Spec       T        `json:"spec" yaml:"spec"`
}

func (a *Asset[T]) Id() string {
	return a.Metadata.Name
}

func (a *Asset[T]) Validate() error {
	el := errors.NewErrorList()

	if a.APIVersion != APIVersion {
		el.Add(fmt.Errorf("apiVersion must be %s", APIVersion))
	}

	if a.Kind == "" {
		el.Add(fmt.Errorf("kind must be set"))
	}

	if a.Metadata.Name == "" {
		el.Add(fmt.Errorf("metadata.name must be set"))
	} else if !identifierPattern.MatchString(a.Metadata.Name) {
		el.Add(fmt.Errorf("metadata.name must be kebab-case"))
	}

	if !versionPattern.MatchString(a.Metadata.Version) {
		el.Add(fmt.Errorf("metadata.version must be x.y.z"))
	}

	if isNil(a.Spec) {
		el.Add(fmt.Errorf("spec must be set"))
	} else {
		el.Add(a.Spec.Validate())
	}

	return el.Err()
}
