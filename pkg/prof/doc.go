// Package prof wraps [runtime/pprof] for the softrf command.
//
// # CPU Profiling
//
// CPU profiling streams samples to a file and requires explicit start/stop:
//
//	prof.StartCPU("cpu.prof")
//	defer prof.StopCPU()
//
// Starting while a profile is active returns [ErrCPUProfileActive].
//
// # Snapshot Profiles
//
// Other profiles capture a point-in-time snapshot, typically written when a
// stream finishes:
//
//	prof.Write(prof.ProfileHeap, "heap.prof")
//
// [ProfileCPU] cannot be used with [Write] or [WriteTo].
//
// # HTTP Endpoints
//
// [Register] mounts the /debug/pprof/ handlers on a mux, so they can share
// the metrics listener:
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", promhttp.Handler())
//	prof.Register(mux)
package prof
