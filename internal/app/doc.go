// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the primary execution lifecycle: wiring a
// build backend into a slot scheduler, evaluating a program on a runtime and
// serving the health, metrics and build endpoints. It is decoupled from any
// specific entrypoint like a CLI.
package app
