// Package collaborator runs the external scripts that do the pipeline's real
// work. A collaborator is invoked synchronously, inherits the terminal's
// stdout and stderr, and reports success through exit status zero.
package collaborator
