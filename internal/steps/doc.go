// Package steps defines the fixed, ordered catalog of pipeline steps.
//
// The catalog is a compile-time table keyed by Key. Each Step carries its
// position, aliases, scheduling flags and, for script steps, the command it
// hands to an external collaborator. Registry resolves names and aliases
// case-insensitively and validates whole selections before anything runs.
package steps
