package batch

import (
	"context"
	"errors"
	"path"
	"strings"

	"docintel-batch/internal/shared/metrics"
	"docintel-batch/internal/shared/storage/object"
	"docintel-batch/internal/shared/telemetry"
	"docintel-batch/internal/shared/util"
)

const documentExt = ".pdf"

// Lister lists objects under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]object.ObjectInfo, error)
}

// IsDocument reports whether key names a recognized source document.
func IsDocument(key string) bool {
	return strings.EqualFold(path.Ext(key), documentExt)
}

// OutputName derives the destination name: "<stem><suffix><ext>".
func OutputName(identity, suffix string) string {
	ext := path.Ext(identity)
	return strings.TrimSuffix(identity, ext) + suffix + ext
}

// Discover lists the source and returns every recognized document in listing order.
// A listing failure is returned as a *DiscoveryError.
func Discover(ctx context.Context, source Lister) ([]WorkItem, error) {
	objects, err := source.List(ctx, "")
	if err != nil {
		return nil, &DiscoveryError{Op: "list source", Err: err}
	}

	items := make([]WorkItem, 0, len(objects))
	for _, obj := range objects {
		if !IsDocument(obj.Key) {
			continue
		}
		items = append(items, WorkItem{Identity: obj.Key, SizeBytes: obj.SizeBytes})
		telemetry.Info("batch.discovery.document", map[string]any{
			"identity": obj.Key,
			"size":     util.FormatBytes(obj.SizeBytes),
		})
	}
	metrics.AddDocumentsDiscovered(len(items))
	telemetry.Info("batch.discovery.complete", map[string]any{
		"listed":     len(objects),
		"discovered": len(items),
	})
	return items, nil
}

// LoadExistingOutputs lists the destination once. An access-denied destination is a
// *DiscoveryError; any other failure is returned as-is so the caller may degrade.
func LoadExistingOutputs(ctx context.Context, dest Lister) (ExistingOutputSet, error) {
	objects, err := dest.List(ctx, "")
	if err != nil {
		if errors.Is(err, object.ErrAccessDenied) {
			return nil, &DiscoveryError{Op: "list destination", Err: err}
		}
		return nil, err
	}
	set := make(ExistingOutputSet, len(objects))
	for _, obj := range objects {
		set[obj.Key] = struct{}{}
	}
	return set, nil
}

// Filter partitions items by whether their derived output already exists. An item
// that is itself the derived output of another discovered item is skipped too, so a
// destination inside the source is never reprocessed. Every item lands in exactly one
// of the two slices and input order is preserved.
func Filter(items []WorkItem, existing ExistingOutputSet, suffix string) (toProcess, skipped []WorkItem) {
	return partition(items, suffix, existing.Contains)
}

// FilterByLookup is Filter for when the destination could not be listed: each derived
// output is checked individually. A failed check keeps the item in the work plan.
func FilterByLookup(ctx context.Context, dest DestinationStore, items []WorkItem, suffix string) (toProcess, skipped []WorkItem) {
	return partition(items, suffix, func(output string) bool {
		ok, err := dest.Exists(ctx, output)
		if err != nil {
			telemetry.Warn("batch.existing_output.lookup_failed", map[string]any{
				"output": output,
				"error":  err,
			})
			return false
		}
		return ok
	})
}

func partition(items []WorkItem, suffix string, outputExists func(output string) bool) (toProcess, skipped []WorkItem) {
	derived := make(map[string]struct{}, len(items))
	for _, item := range items {
		derived[OutputName(item.Identity, suffix)] = struct{}{}
	}
	for _, item := range items {
		if _, isOutput := derived[item.Identity]; isOutput {
			skipped = append(skipped, item)
			continue
		}
		if outputExists(OutputName(item.Identity, suffix)) {
			skipped = append(skipped, item)
			continue
		}
		toProcess = append(toProcess, item)
	}
	return toProcess, skipped
}
