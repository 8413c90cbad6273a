// Package stack composes the database, storage and queue units of the
// read-it-later-anator infrastructure into one Pulumi program for an
// environment, and verifies deployed resources against the same
// declarations.
//
// A program is built from a [Config]:
//
//	cfg, err := stack.Load("readitlater.yaml")
//	...
//	pulumi.Run(stack.Program(cfg))
//
// The Pulumi CLI path uses [Run], which reads the same settings from the
// "readitlater" stack configuration namespace.
package stack
