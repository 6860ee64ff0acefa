package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/macropower/k8r/pkg/names"
)

// EnvOriginalPWD holds the directory the user invoked k8r from, when a
// wrapper changed it before exec.
const EnvOriginalPWD = "K8R_ORIGINAL_PWD"

// NameLength is the length workload names are sanitized to, leaving room for
// [ConfigMapSuffix].
var NameLength = names.ReserveSuffix(names.MaxLength, len(ConfigMapSuffix))

// DefaultName returns the sanitized workload name for src. A non-empty
// explicit name always wins.
func DefaultName(explicit string, src Source) string {
	return names.Sanitize(baseName(explicit, src), NameLength)
}

// WorkingDirName returns the base name of the directory the user invoked k8r
// from.
func WorkingDirName() string {
	if pwd := os.Getenv(EnvOriginalPWD); pwd != "" {
		if info, err := os.Stat(pwd); err == nil && info.IsDir() {
			return filepath.Base(pwd)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return names.Placeholder
	}

	return filepath.Base(wd)
}

func baseName(explicit string, src Source) string {
	if explicit != "" {
		return explicit
	}

	loc := src.Location()
	if loc == "." || loc == "./" {
		return WorkingDirName()
	}

	switch s := src.(type) {
	case GitRepo:
		url := strings.TrimRight(s.URL, "/")
		return strings.TrimSuffix(url[strings.LastIndex(url, "/")+1:], ".git")
	case Directory:
		abs, err := filepath.Abs(s.Path)
		if err != nil {
			return filepath.Base(s.Path)
		}

		return filepath.Base(abs)
	}

	return loc
}
