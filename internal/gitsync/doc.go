// Package gitsync applies the remote-always-wins policy to the category
// repositories under the people-images root.
//
// Sync makes a working tree an exact mirror of its remote branch: fetch, then
// a hard reset and a full clean treated as one unit. If that unit cannot
// complete, the tree is rolled back to its pre-sync commit and the returned
// SyncError names the state the repository was left in. Publish stages
// everything, commits only when something changed, and pushes once without
// retrying.
//
// Network operations go through the git CLI so they inherit the operator's
// credential helpers and SSH agent; local object and worktree manipulation
// uses go-git.
package gitsync
