// Package archive defines the Archive Client contract (spec.md §4.1) and
// an HTTP implementation of it. Every other component in this module
// reaches the downstream archive only through the Client interface; DICOM
// parsing, storage internals, and the archive's own processing are all
// out of scope and live entirely behind this boundary.
package archive

import (
	"context"

	"github.com/oriongate/dicomdispatch/internal/restree"
)

// Client is every operation the dispatch core needs from the archive.
// Implementations are expected to be safe for concurrent use; the HTTP
// implementation in this package is.
type Client interface {
	ListStudies(ctx context.Context, patientID string) ([]string, error)
	ListSeries(ctx context.Context, studyID string) ([]string, error)
	ListInstances(ctx context.Context, seriesID string) ([]string, error)

	// GetMetadata returns the archive's view of an instance sufficient to
	// classify its origin and identify the sending/called AETs.
	GetMetadata(ctx context.Context, instanceID string) (restree.InstanceMeta, error)

	// GetDicomBytes returns the raw encoded instance.
	GetDicomBytes(ctx context.Context, instanceID string) ([]byte, error)

	// SubmitInstance uploads a new instance (produced by a module) and
	// returns the archive-assigned instance id.
	SubmitInstance(ctx context.Context, raw []byte) (string, error)

	// StoreToModality forwards already-submitted instances to a
	// configured downstream DICOM destination by name.
	StoreToModality(ctx context.Context, destinationName string, instanceIDs []string) error

	// BulkDelete removes instances from the archive, used for cleanup of
	// both this dispatcher's own echoes and processed external arrivals.
	BulkDelete(ctx context.Context, instanceIDs []string) error

	// Log forwards a message to the archive's own logging surface, the
	// way the original Orthanc plugin calls orthanc.LogWarning so
	// operators watching the archive's log see dispatcher activity
	// without a second place to look.
	Log(level, msg string)
}
