package ledger

// journal records undo closures for the writes of a single operation.
type journal struct {
	entries []func()
}

func (j *journal) append(undo func()) {
	j.entries = append(j.entries, undo)
}

// revert runs the undo closures newest first and empties the journal.
func (j *journal) revert() {
	for i := len(j.entries) - 1; i >= 0; i-- {
		j.entries[i]()
	}
	j.entries = nil
}

func (j *journal) length() int {
	return len(j.entries)
}
