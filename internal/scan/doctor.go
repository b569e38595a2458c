package scan

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/lanegrid/agtrace/internal/provider"
)

// FailureType buckets whole-file diagnostic outcomes.
type FailureType string

const (
	FailureMissingHeader FailureType = "missing_header"
	FailureMalformed     FailureType = "malformed"
	FailureIO            FailureType = "io"
	FailureOther         FailureType = "other"
)

// FailureExample is one failing file with its reason.
type FailureExample struct {
	Path   string
	Reason string
}

// DiagnoseResult is the per-provider outcome of a doctor pass.
type DiagnoseResult struct {
	ProviderName string
	TotalFiles   int
	Successful   int
	Failures     map[FailureType][]FailureExample
	// SuppressedRecords totals individually-failed records across files
	// that otherwise parsed.
	SuppressedRecords int
}

// Doctor walks a provider's log root and attempts a full parse of every
// file the adapter claims, categorizing failures for diagnostics.
func Doctor(adapter provider.Adapter, logRoot string) (DiagnoseResult, error) {
	result := DiagnoseResult{
		ProviderName: adapter.Name(),
		Failures:     make(map[FailureType][]FailureExample),
	}

	var paths []string
	err := filepath.WalkDir(logRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && adapter.Probe(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	result.TotalFiles = len(paths)
	for _, path := range paths {
		_, stats, err := provider.NormalizeFile(adapter, path)
		if err != nil {
			result.Failures[categorize(err)] = append(result.Failures[categorize(err)], FailureExample{
				Path:   path,
				Reason: err.Error(),
			})
			continue
		}
		result.Successful++
		result.SuppressedRecords += stats.FailedRecords
	}
	return result, nil
}

func categorize(err error) FailureType {
	var fileErr *provider.FileError
	if errors.As(err, &fileErr) {
		msg := strings.ToLower(fileErr.Msg)
		if strings.Contains(msg, "header") || strings.Contains(msg, "session_meta") ||
			strings.Contains(msg, "sessionid") {
			return FailureMissingHeader
		}
		return FailureMalformed
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return FailureIO
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "json"):
		return FailureMalformed
	case strings.Contains(msg, "open") || strings.Contains(msg, "read"):
		return FailureIO
	}
	return FailureOther
}
