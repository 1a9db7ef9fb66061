// Package profiling captures CPU, heap and execution trace profiles for the
// lifetime of one CLI command.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options names the output file of each profile. Empty paths are skipped.
type Options struct {
	CPUPath   string
	HeapPath  string
	TracePath string
}

// Enabled reports whether any profile is requested.
func (o Options) Enabled() bool {
	return o.CPUPath != "" || o.HeapPath != "" || o.TracePath != ""
}

// Session is a running set of profiles.
type Session struct {
	heapPath string
	stops    []func()
}

// Start begins the CPU profile and execution trace named in opts. The heap
// profile is a snapshot taken by Stop.
func Start(opts Options) (*Session, error) {
	s := &Session{heapPath: opts.HeapPath}

	if opts.CPUPath != "" {
		stop, err := startCPU(opts.CPUPath)
		if err != nil {
			return nil, err
		}
		s.stops = append(s.stops, stop)
	}

	if opts.TracePath != "" {
		stop, err := startTrace(opts.TracePath)
		if err != nil {
			s.stopAll()
			return nil, err
		}
		s.stops = append(s.stops, stop)
	}

	return s, nil
}

// Stop ends running profiles and writes the heap snapshot. Safe to call on
// a nil Session and more than once.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	s.stopAll()

	if s.heapPath == "" {
		return nil
	}
	path := s.heapPath
	s.heapPath = ""
	return writeHeap(path)
}

func (s *Session) stopAll() {
	for i := len(s.stops) - 1; i >= 0; i-- {
		s.stops[i]()
	}
	s.stops = nil
}

func startCPU(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}

	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
	}, nil
}

func startTrace(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}

	return func() {
		trace.Stop()
		_ = f.Close()
	}, nil
}

// writeHeap writes a point-in-time heap profile.
func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}

	// Collect first so the profile reflects live objects only
	runtime.GC()

	werr := pprof.WriteHeapProfile(f)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}
