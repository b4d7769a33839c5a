// Package preflight provides readiness checks for the filesystem paths and
// executables the pipeline depends on.
//
// These checks run in two contexts:
//   - The ensure_repo step calls CheckRepoStructure and fails the run when the
//     people-images repository is missing or incomplete.
//   - The CLI "check" command calls RunAll to display overall readiness.
package preflight
