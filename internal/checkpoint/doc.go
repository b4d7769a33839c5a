// Package checkpoint persists per-step completion records so an interrupted
// run resumes without repeating finished work.
//
// Two backends implement Store: FileStore keeps one human-readable TOML file
// per step and replaces it atomically; SQLiteStore keeps the same records in a
// single table. Both are constructed with the registry order so InvalidateFrom
// can cascade to every later step.
package checkpoint
