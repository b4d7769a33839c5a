// Package main hosts the peoplepipe CLI entrypoint and command graph.
//
// The root command runs the poster pipeline: it resolves configuration once,
// translates the selection flags into a pipeline request and reports each
// step's outcome. Subcommands list the step catalog, check readiness, scaffold
// configuration and read the run log.
//
// Keep this package lean: behaviour lives in the internal packages and is
// only surfaced here.
package main
