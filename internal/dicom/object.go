// Package dicom defines the narrow view of a DICOM instance the dispatch
// core needs: a handful of named string attributes used for filtering.
// Parsing raw DICOM bytes into an Object, and encoding an Object back into
// DICOM bytes, is explicitly out of scope (spec.md §1) — a real deployment
// plugs in a DICOM codec such as suyashkumar/dicom or grailbio/go-dicom
// here; TagMapObject below and TagMapParser in parser.go exist only to
// keep the dispatcher and its tests self-contained.
package dicom

// Tag names the fixed allow-list of DICOM attributes the Filter Engine may
// read. Any key outside this set is ignored wherever filters are applied.
type Tag string

const (
	TagAccessionNumber             Tag = "AccessionNumber"
	TagPatientName                 Tag = "PatientName"
	TagPatientID                   Tag = "PatientID"
	TagStudyDescription            Tag = "StudyDescription"
	TagSeriesDescription           Tag = "SeriesDescription"
	TagImageType                   Tag = "ImageType"
	TagInstitutionName             Tag = "InstitutionName"
	TagInstitutionalDepartmentName Tag = "InstitutionalDepartmentName"
	TagManufacturer                Tag = "Manufacturer"
	TagManufacturerModelName       Tag = "ManufacturerModelName"
	TagModality                    Tag = "Modality"
	TagOperatorsName               Tag = "OperatorsName"
	TagPerformingPhysicianName     Tag = "PerformingPhysicianName"
	TagProtocolName                Tag = "ProtocolName"
	TagStudyID                     Tag = "StudyID"
)

// AllowedTags is the fixed allow-list from spec.md §3, in the order the
// specification lists them. Filter keys outside this set are silently
// ignored rather than rejected, matching the original plugin's behavior.
var AllowedTags = []Tag{
	TagAccessionNumber,
	TagPatientName,
	TagPatientID,
	TagStudyDescription,
	TagSeriesDescription,
	TagImageType,
	TagInstitutionName,
	TagInstitutionalDepartmentName,
	TagManufacturer,
	TagManufacturerModelName,
	TagModality,
	TagOperatorsName,
	TagPerformingPhysicianName,
	TagProtocolName,
	TagStudyID,
}

// IsAllowedTag reports whether t belongs to the fixed filter allow-list.
func IsAllowedTag(t Tag) bool {
	for _, a := range AllowedTags {
		if a == t {
			return true
		}
	}
	return false
}

// Object is the core's entire view of a DICOM instance: named,
// string-valued attributes for filtering, plus the raw bytes a matched
// module receives and a matched module may hand back for re-submission.
type Object interface {
	// Value returns the string form of tag and whether the instance
	// exposes it at all. A present-but-empty value is not the same as
	// absent: filters only reject on absence, per spec.md §4.2.
	Value(tag Tag) (string, bool)

	// Bytes returns the raw encoded instance, the representation
	// submitted back to the archive and stored to a modality.
	Bytes() []byte
}

// TagMapObject is a minimal Object backed by an explicit tag map and raw
// bytes. It is what Parser.Parse below produces, and is also convenient
// for constructing fixtures in tests and in example modules.
type TagMapObject struct {
	Tags map[Tag]string
	Raw  []byte
}

func (o *TagMapObject) Value(tag Tag) (string, bool) {
	v, ok := o.Tags[tag]
	return v, ok
}

func (o *TagMapObject) Bytes() []byte { return o.Raw }

// Parser turns raw instance bytes fetched from the archive into an Object.
// The dispatcher calls it at most once per external instance per event
// cycle, and only when at least one module is a candidate for the event
// (spec.md §4.6 step 4); a production Parser wraps a real DICOM
// decoder. TagMapParser below is a placeholder that expects the bytes to
// already be a tag-map encoding, useful for tests and for modules that
// exchange a simplified wire format with the dispatcher's plugin RPC.
type Parser interface {
	Parse(raw []byte) (Object, error)
}
