package storage

import (
	"fmt"
	"strings"
)

// Blob roots. Each session namespace gets one directory under each.
const (
	UploadsRoot = "uploads/"
	MergedRoot  = "merged/"
)

// UploadKey is uploads/<namespace>/<storedName>.
func UploadKey(namespace, storedName string) string {
	return fmt.Sprintf("%s%s/%s", UploadsRoot, namespace, storedName)
}

// MergedKey is merged/<namespace>/<downloadID>_<filename>.
func MergedKey(namespace, downloadID, filename string) string {
	return fmt.Sprintf("%s%s/%s_%s", MergedRoot, namespace, downloadID, filename)
}

func NamespacePrefix(root, namespace string) string {
	return root + namespace + "/"
}

// NamespaceFromKey returns the namespace segment of a key under either root.
func NamespaceFromKey(key string) (string, bool) {
	for _, root := range []string{UploadsRoot, MergedRoot} {
		if rest, ok := strings.CutPrefix(key, root); ok {
			ns, _, found := strings.Cut(rest, "/")
			return ns, found && ns != ""
		}
	}
	return "", false
}
