package dicom

import "encoding/json"

// TagMapParser decodes the simplified JSON tag-map wire format used by
// tests and example modules: {"tags": {"Modality": "CT", ...}}. The raw
// bytes are preserved verbatim on the resulting Object so they round-trip
// through submit/store calls unchanged.
type TagMapParser struct{}

type tagMapWire struct {
	Tags map[Tag]string `json:"tags"`
}

func (TagMapParser) Parse(raw []byte) (Object, error) {
	var wire tagMapWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	return &TagMapObject{Tags: wire.Tags, Raw: raw}, nil
}

// Encode serializes an Object's tags back into the wire format TagMapParser
// understands, for modules that synthesize new instances in tests.
func Encode(tags map[Tag]string) []byte {
	raw, _ := json.Marshal(tagMapWire{Tags: tags})
	return raw
}
