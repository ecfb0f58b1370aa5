// Package restree models the patient ⊃ study ⊃ series ⊃ instance resource
// tree (spec.md §3) and the operations the Event Dispatcher performs on
// it: lazy expansion from the archive, origin classification, per-module
// filtering, and pruning.
package restree

// Level is the granularity at which a module wishes to observe events,
// and also the granularity of an archive change event itself.
type Level string

const (
	LevelSeries  Level = "Series"
	LevelStudy   Level = "Study"
	LevelPatient Level = "Patient"
)

// Series is a leaf level: a series id plus the instance ids it contains.
type Series struct {
	ID        string
	Instances []string
}

// Study is a study id plus its series, each already expanded to instances.
type Study struct {
	ID     string
	Series []Series
}

// Tree is the resource tree for one event: a list of studies. A Series
// event produces a Tree with exactly one synthetic study and one series;
// a Study event one study with its series; a Patient event every study
// under the patient. The shape is always 3 levels deep by the time
// expansion finishes (spec.md §3, §4.6), regardless of which level
// triggered the event — see Design Notes on tree shape conditioning.
type Tree []Study

// Flatten returns every instance id in the tree, in tree order.
func (t Tree) Flatten() []string {
	var out []string
	for _, st := range t {
		for _, se := range st.Series {
			out = append(out, se.Instances...)
		}
	}
	return out
}

// Filter returns a copy of t containing only instances for which keep
// returns true, with series and studies left empty by the filter pruned
// away entirely (spec.md §4.6 step 5).
func (t Tree) Filter(keep func(instanceID string) bool) Tree {
	out := make(Tree, 0, len(t))
	for _, st := range t {
		newSt := Study{ID: st.ID}
		for _, se := range st.Series {
			newSe := Series{ID: se.ID}
			for _, id := range se.Instances {
				if keep(id) {
					newSe.Instances = append(newSe.Instances, id)
				}
			}
			if len(newSe.Instances) > 0 {
				newSt.Series = append(newSt.Series, newSe)
			}
		}
		if len(newSt.Series) > 0 {
			out = append(out, newSt)
		}
	}
	return out
}

// Empty reports whether the tree carries no instances at all.
func (t Tree) Empty() bool {
	for _, st := range t {
		for _, se := range st.Series {
			if len(se.Instances) > 0 {
				return false
			}
		}
	}
	return true
}
