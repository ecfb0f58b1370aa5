package moduleproto

import (
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// ToWire converts a restree.Files payload into its wire representation
// for a ProcessParams call.
func ToWire(f restree.Files) Files {
	wire := Files{Level: string(f.Level)}
	for _, st := range f.Studies {
		wireStudy := Study{ID: st.ID}
		for _, se := range st.Series {
			wireSeries := Series{ID: se.ID}
			for _, obj := range se.Instances {
				wireSeries.Instances = append(wireSeries.Instances, objectToWire(obj))
			}
			wireStudy.Series = append(wireStudy.Series, wireSeries)
		}
		wire.Studies = append(wire.Studies, wireStudy)
	}
	return wire
}

func objectToWire(obj dicom.Object) Instance {
	tags := make(map[string]string, len(dicom.AllowedTags))
	for _, t := range dicom.AllowedTags {
		if v, ok := obj.Value(t); ok {
			tags[string(t)] = v
		}
	}
	return Instance{Tags: tags, Raw: obj.Bytes()}
}

// FromWireInstances converts the instances a module returned back into
// dicom.Objects the dispatcher can submit to the archive.
func FromWireInstances(instances []Instance) []dicom.Object {
	out := make([]dicom.Object, 0, len(instances))
	for _, wi := range instances {
		tagMap := make(map[dicom.Tag]string, len(wi.Tags))
		for k, v := range wi.Tags {
			tagMap[dicom.Tag(k)] = v
		}
		out = append(out, &dicom.TagMapObject{Tags: tagMap, Raw: wi.Raw})
	}
	return out
}
