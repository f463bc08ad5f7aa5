// Package matrix probes which checksum algorithms each storage endpoint
// supports and renders the outcome as a wiki table.
package matrix

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Ning0612/treeclean/internal/adapter"
	"github.com/Ning0612/treeclean/internal/core/checksum"
	"github.com/Ning0612/treeclean/internal/domain"
	"github.com/Ning0612/treeclean/internal/logger"
)

// DefaultProbeName is the file created in each storage root
const DefaultProbeName = "checksum.test"

// probeContent is the payload written to every probe file
const probeContent = "treeclean checksum probe\n"

// Storage is one probed endpoint
type Storage struct {
	Name   string
	Client adapter.Adapter
}

// Results maps storage name to algorithm support
type Results map[string]map[checksum.Algorithm]bool

// Set records the outcome of one probe
func (r Results) Set(storage string, algo checksum.Algorithm, supported bool) {
	impl, ok := r[storage]
	if !ok {
		impl = make(map[checksum.Algorithm]bool)
		r[storage] = impl
	}
	impl[algo] = supported
}

// Lookup returns the outcome of one probe; ok is false when it never ran
func (r Results) Lookup(storage string, algo checksum.Algorithm) (supported, ok bool) {
	supported, ok = r[storage][algo]
	return supported, ok
}

// Harness runs the probes
type Harness struct {
	algorithms []checksum.Algorithm
	probeName  string
	log        logger.Logger
}

// New creates a harness for algos (all when empty)
func New(algos []checksum.Algorithm, probeName string, log logger.Logger) *Harness {
	if len(algos) == 0 {
		algos = checksum.All()
	}
	if probeName == "" {
		probeName = DefaultProbeName
	}
	if log == nil {
		log = logger.Get()
	}
	return &Harness{algorithms: algos, probeName: probeName, log: log}
}

// Algorithms returns the probed algorithms in column order
func (h *Harness) Algorithms() []checksum.Algorithm {
	return h.algorithms
}

// Run probes every (algorithm, storage) pair, algorithm-major.
// A checksum failure only marks the pair unsupported. Failing to create or
// remove the probe aborts the run; results gathered so far are returned.
func (h *Harness) Run(ctx context.Context, storages []Storage) (Results, error) {
	results := make(Results)

	for _, algo := range h.algorithms {
		for _, storage := range storages {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			supported, err := h.probe(ctx, storage, algo)
			if err != nil {
				h.log.Error("probe failed", "storage", storage.Name, "algorithm", algo.String(), "error", err)
				return results, fmt.Errorf("fatal for %s: %w", storage.Name, err)
			}
			results.Set(storage.Name, algo, supported)
		}
	}

	return results, nil
}

func (h *Harness) probe(ctx context.Context, storage Storage, algo checksum.Algorithm) (supported bool, err error) {
	writer, ok := storage.Client.(adapter.Writer)
	if !ok {
		return false, fmt.Errorf("cannot create probe: %w", domain.ErrNotSupported)
	}
	if err := writer.Write(ctx, h.probeName, strings.NewReader(probeContent)); err != nil {
		return false, fmt.Errorf("cannot create probe: %w", err)
	}

	defer func() {
		// Absence is fine, anything else invalidates the run
		if uerr := storage.Client.Unlink(ctx, h.probeName); uerr != nil && !domain.IsNotFound(uerr) && err == nil {
			err = fmt.Errorf("cannot remove probe: %w", uerr)
		}
	}()

	summer, ok := storage.Client.(adapter.Checksummer)
	if !ok {
		h.log.Info("checksum", "algorithm", algo.String(), "storage", storage.Name, "result", "FAILED",
			"error", domain.ErrNotSupported)
		return false, nil
	}

	value, cerr := summer.Checksum(ctx, h.probeName, algo)
	if cerr != nil {
		if errors.Is(cerr, context.Canceled) || errors.Is(cerr, context.DeadlineExceeded) {
			return false, cerr
		}
		h.log.Info("checksum", "algorithm", algo.String(), "storage", storage.Name, "result", "FAILED", "error", cerr)
		return false, nil
	}

	h.log.Info("checksum", "algorithm", algo.String(), "storage", storage.Name, "result", "OK", "value", value)
	return true, nil
}

// Render writes the wiki table: a header row, then one row per storage
// sorted by name. Missing results are shown as "?".
func Render(w io.Writer, storages []string, algos []checksum.Algorithm, results Results) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("|| STORAGE ||")
	for _, algo := range algos {
		fmt.Fprintf(bw, " %s ||", algo)
	}
	bw.WriteString("\n")

	names := append([]string(nil), storages...)
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(bw, "| %s |", name)
		for _, algo := range algos {
			cell := "?"
			if supported, ok := results.Lookup(name, algo); ok {
				cell = "False"
				if supported {
					cell = "True"
				}
			}
			fmt.Fprintf(bw, " %s |", cell)
		}
		bw.WriteString("\n")
	}

	return bw.Flush()
}

// WriteFile renders the table into path
func WriteFile(path string, storages []string, algos []checksum.Algorithm, results Results) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Render(f, storages, algos, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
