/*
Package workload defines benchmark workloads and the registry that holds them.

# Overview

A workload is a named unit of work whose execution time is measured. Every
workload kind (CPU kernel, I/O, database call, network exchange) is described
by the same Descriptor:

  - Setup builds per-run state from a parameter combination and the shared
    fixtures the workload declared
  - Run is the measured unit and must be repeatable against the same state
  - Teardown releases what Setup built

# Parameter Spaces

Each descriptor declares an ordered list of axes. The parameter space is the
cartesian product of those axes, enumerated lazily. Axes are walked in
declaration order with the last axis varying fastest, and each axis yields
its values in declaration order, so two enumerations of the same descriptor
always produce the same sequence.

	d := Descriptor{
		Name: "cpu.sha256",
		Axes: []Axis{{Name: "bytes", Values: []any{1024, 1 << 20}}},
		Run:  run,
	}

	for params := range d.Space().All() {
		fmt.Println(params.Key()) // bytes=1024, then bytes=1048576
	}

# Registry

Registry stores descriptors by name. Registration normally happens once at
process start; lookups are safe from any goroutine afterwards.
*/
package workload
