package restree

import "github.com/oriongate/dicomdispatch/internal/dicom"

// SeriesFiles mirrors Series but carries parsed DICOM objects instead of
// bare instance ids — what a module actually receives.
type SeriesFiles struct {
	ID        string
	Instances []dicom.Object
}

// StudyFiles mirrors Study with parsed objects.
type StudyFiles struct {
	ID     string
	Series []SeriesFiles
}

// Files is the uniform 3-level payload handed to a module's Process call,
// tagged with the Level of the event that produced it. spec.md §4.6 step 6
// describes flattening the tree to match the event level (a single
// series's flat instance list, or a single study's series list); per the
// tree-shape-conditioning note in §9 we instead always pass the full
// 3-level shape and let the module index by Level when it cares — a
// Series-triggered module reads Files.Studies[0].Series[0].Instances, a
// Study-triggered module reads Files.Studies[0].Series, a
// Patient-triggered module reads Files.Studies directly. This removes a
// fragile dimension-peeling step without changing what data is available.
type Files struct {
	Level   Level
	Studies []StudyFiles
}

// Flatten returns every object in the payload, tree order.
func (f Files) Flatten() []dicom.Object {
	var out []dicom.Object
	for _, st := range f.Studies {
		for _, se := range st.Series {
			out = append(out, se.Instances...)
		}
	}
	return out
}

// Empty reports whether the payload carries no objects at all.
func (f Files) Empty() bool {
	for _, st := range f.Studies {
		for _, se := range st.Series {
			if len(se.Instances) > 0 {
				return false
			}
		}
	}
	return true
}

// Build assembles a Files payload from a Tree of instance ids plus a
// lookup of already-parsed objects, keeping only instances present in
// objects (an instance whose bytes could not be fetched or parsed is
// absent from the map) and, when keep is non-nil, accepted by keep, then
// pruning series/studies left empty, matching Tree.Filter's pruning rule.
func Build(level Level, t Tree, objects map[string]dicom.Object, keep func(dicom.Object) bool) Files {
	files := Files{Level: level}
	for _, st := range t {
		newSt := StudyFiles{ID: st.ID}
		for _, se := range st.Series {
			newSe := SeriesFiles{ID: se.ID}
			for _, id := range se.Instances {
				obj, ok := objects[id]
				if !ok {
					continue
				}
				if keep != nil && !keep(obj) {
					continue
				}
				newSe.Instances = append(newSe.Instances, obj)
			}
			if len(newSe.Instances) > 0 {
				newSt.Series = append(newSt.Series, newSe)
			}
		}
		if len(newSt.Series) > 0 {
			files.Studies = append(files.Studies, newSt)
		}
	}
	return files
}
