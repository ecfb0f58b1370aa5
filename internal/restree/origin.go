package restree

// InstanceMeta is the subset of an instance's archive metadata the
// dispatcher needs: which AE the sender called, which AE the sender
// claimed to be, and whether the archive's own plugin pipeline produced
// the instance. Per the resolved Open Question in spec.md §9, origin
// classification relies solely on Origin; CalledAET is read only for AET
// matching on the external branch.
type InstanceMeta struct {
	Origin    string
	CalledAET string
	RemoteAET string
}

// OriginPlugins is the archive-assigned Origin value this dispatcher's own
// output carries, used to detect and garbage-collect its own echoes.
const OriginPlugins = "Plugins"

// Split classifies every instance in t into the internal (self-produced)
// and external (received) projections from metadata the caller fetched in
// one pass, per spec.md §9's note that a second walk would cost an extra
// metadata fetch round trip. Split itself filters t twice in memory and
// makes no archive calls. The two results share the shape of t wherever
// both have instances at a given series; either is an empty (non-nil)
// Tree if it has no instances at all.
func Split(t Tree, meta map[string]InstanceMeta) (internal, external Tree) {
	isInternal := func(id string) bool {
		return meta[id].Origin == OriginPlugins
	}
	isExternal := func(id string) bool {
		return meta[id].Origin != OriginPlugins
	}
	return t.Filter(isInternal), t.Filter(isExternal)
}
