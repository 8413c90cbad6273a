// Package deploy drives the Pulumi engine for one environment of the
// read-it-later-anator infrastructure through the Automation API. The
// program is declared inline by package stack; each environment maps to a
// Pulumi stack of the same name.
package deploy
