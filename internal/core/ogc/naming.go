package ogc

import (
	"fmt"
	"strings"
)

var filenameCleaner = strings.NewReplacer(" ", "", ":", "_", "/", "_")

// Filename builds the name of a downloaded coverage:
// collection_layers_maxcc_priority_<bbox parts>.<ext>, the extension taken
// from the mime subtype of format.
func Filename(collection, layers, maxcc, priority, bbox, format string) string {
	parts := []string{collection, layers, maxcc, priority}
	parts = append(parts, strings.Split(bbox, ",")...)
	name := strings.Join(parts, "_") + "." + formatExtension(format)
	return filenameCleaner.Replace(name)
}

func formatExtension(format string) string {
	mime, _, _ := strings.Cut(format, ";")
	_, sub, ok := strings.Cut(mime, "/")
	if !ok {
		return mime
	}
	return sub
}

// LayerName is the display name of an added map layer.
// label is the layer title in layer mode, otherwise the selector list.
func LayerName(collection, label, timeName, style, crs, priority, maxcc string) string {
	params := []string{timeName, style, crs, priority, maxcc + "%"}
	return fmt.Sprintf("%s_[%s] (%s)", collection, label, strings.Join(params, ", "))
}
