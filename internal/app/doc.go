// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: load a workload, run it
// on the CPU device, and print and store the report. It is decoupled from
// any specific entrypoint like a CLI.
package app
