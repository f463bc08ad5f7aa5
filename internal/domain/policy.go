package domain

// Policy controls how a clean run reacts to failures and which entries it removes
// A Policy is captured when the cleaner is built and never changes afterwards
type Policy struct {
	// AbortOnError stops the whole run at the first listing or removal failure
	AbortOnError bool `mapstructure:"abort"`

	// OnlyFiles suppresses directory removal
	OnlyFiles bool `mapstructure:"files"`

	// RepairPermissions attempts to make non-writable directories writable
	// before descending into them
	RepairPermissions bool `mapstructure:"chmod"`

	// Recursive is accepted for compatibility but never consulted:
	// traversal always descends into every subdirectory
	Recursive bool `mapstructure:"recursive"`

	// Workers bounds how many sibling subdirectories are cleaned at once
	// Values below 2 keep the sequential depth-first order
	Workers int `mapstructure:"workers"`

	// Exclude lists glob patterns; matching entries are left untouched
	Exclude []string `mapstructure:"exclude"`

	// DryRun logs removals without performing them
	DryRun bool `mapstructure:"dry_run"`
}

// CleanResult is the aggregate outcome of one traversal
type CleanResult struct {
	FilesRemoved       int
	DirectoriesRemoved int
}

// Add folds another result into this one
func (r *CleanResult) Add(other CleanResult) {
	r.FilesRemoved += other.FilesRemoved
	r.DirectoriesRemoved += other.DirectoriesRemoved
}
