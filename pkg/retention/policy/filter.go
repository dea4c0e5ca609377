package policy

import (
	"path"
	"strings"

	"mercator-hq/saturn/pkg/retention"
)

// MatchesPath reports whether the policy's path filter admits filePath.
//
// An empty filter matches everything. A filter containing glob
// metacharacters (* ? [) matches when the pattern matches the path or any
// of its ancestor directories, so "/C42/contracts/*" also covers files in
// nested folders. Any other filter is a segment-aware prefix: "/C42/legal"
// matches "/C42/legal" and "/C42/legal/a.pdf" but not "/C42/legal-old".
func MatchesPath(pol *retention.Policy, filePath string) bool {
	filter := pol.PathFilter
	if filter == "" {
		return true
	}
	filePath = path.Clean("/" + strings.TrimPrefix(filePath, "/"))

	if strings.ContainsAny(filter, "*?[") {
		for p := filePath; ; p = path.Dir(p) {
			if ok, _ := matchPattern(filter, p); ok {
				return true
			}
			if p == "/" {
				return false
			}
		}
	}

	prefix := path.Clean("/" + strings.TrimPrefix(filter, "/"))
	if prefix == "/" {
		return true
	}
	return filePath == prefix || strings.HasPrefix(filePath, prefix+"/")
}

// MatchesType reports whether the policy's type filter admits ext. An empty
// filter matches everything; comparison ignores case and leading dots.
func MatchesType(pol *retention.Policy, ext string) bool {
	if len(pol.FileTypeFilter) == 0 {
		return true
	}
	ext = NormalizeExtension(ext)
	for _, allowed := range pol.FileTypeFilter {
		if NormalizeExtension(allowed) == ext {
			return true
		}
	}
	return false
}

func matchPattern(pattern, name string) (bool, error) {
	pattern = path.Clean("/" + strings.TrimPrefix(pattern, "/"))
	return path.Match(pattern, name)
}
