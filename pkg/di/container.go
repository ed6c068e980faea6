/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package di

import (
	"fmt"

	"go.uber.org/dig"
)

// Container wraps dig.Container with panic-on-error helpers for start-up wiring
type Container struct {
	*dig.Container
}

// NewContainer creates a new dependency injection container using dig
func NewContainer() *Container {
	return &Container{
		Container: dig.New(),
	}
}

// MustProvide registers a constructor and panics on error (useful for initialization)
func (c *Container) MustProvide(constructor interface{}) {
	if err := c.Provide(constructor); err != nil {
		panic(fmt.Sprintf("failed to provide dependency: %v", err))
	}
}

// Resolve returns the T the container builds, constructing its dependencies
// on first use. Errors name the missing or failing constructor.
func Resolve[T any](c *Container) (T, error) {
	var resolved T
	err := c.Invoke(func(value T) {
		resolved = value
	})
	return resolved, err
}

// String returns a string representation of the container
func (c *Container) String() string {
	return fmt.Sprintf("PodInjectorContainer{digContainer: %s}", c.Container.String())
}
