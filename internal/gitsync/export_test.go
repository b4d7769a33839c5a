package gitsync

// WithRename replaces the rename used to quarantine and restore paths.
func WithRename(rename func(oldpath, newpath string) error) Option {
	return func(s *Synchronizer) { s.rename = rename }
}

// WithAfterReset runs hook once the hard reset and clean have completed.
func WithAfterReset(hook func() error) Option {
	return func(s *Synchronizer) { s.afterReset = hook }
}
