package sync

// Actions collects the remote writes a reconciliation pass produced.
// Sets are applied as a single batch request before deletes.
type Actions struct {
	Set    map[string]string
	Delete []string
}

func NewActions() *Actions {
	return &Actions{Set: make(map[string]string)}
}

func (a *Actions) AddSet(remoteKey, value string) {
	a.Set[remoteKey] = value
}

func (a *Actions) AddDelete(remoteKey string) {
	a.Delete = append(a.Delete, remoteKey)
}

// Merge folds the other action set into this one.
func (a *Actions) Merge(other *Actions) {
	if other == nil {
		return
	}
	for k, v := range other.Set {
		a.Set[k] = v
	}
	a.Delete = append(a.Delete, other.Delete...)
}

func (a *Actions) Empty() bool {
	return len(a.Set) == 0 && len(a.Delete) == 0
}

// Count returns the number of individual write operations.
func (a *Actions) Count() int {
	return len(a.Set) + len(a.Delete)
}
