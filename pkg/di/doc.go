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

/*
Package di wires the pod injector webhook together using Uber Dig.

# Core Components

Application owns the process lifecycle:
  - Builds the container and registers every service
  - Resolves the HTTP server and runs it until the context ends
  - Stop cancels a running Start

Container wraps the dig container. MustProvide is for start-up code where a
wiring error is fatal; Resolve[T] returns a typed instance or the dig error.

ServiceRegistry registers services in dependency order:
  - Configuration (loader, then the merged *config.Config)
  - Logger (*logging.Logger and its logr.Logger)
  - Core services (metrics collector, admission reviewer)
  - Servers (health, metrics, webhook handlers and the server)

# Usage

	app, err := di.NewApplicationWithConfig(ctx, "/etc/podinjector/config.yaml")
	if err != nil {
		return err
	}

	// Blocks until ctx is cancelled
	return app.Start(ctx)

# Dependency Graph

	Configuration (defaults, YAML file, PODINJECTOR_* env)
	  ↓
	Logger
	  ↓
	├─ Metrics Collector
	├─ Reviewer (patch verification from config)
	│
	├─ HealthChecker
	├─ MetricsServer (nil when metrics are disabled)
	├─ WebhookServer (reviewer, collector)
	│
	└─ Server (config, logger, handlers)

Wiring errors surface from Build, before any listener is opened.
*/
package di
