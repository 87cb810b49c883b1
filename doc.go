// Package imp runs image-processing filter graphs on a compute device.
//
// # Overview
//
// A [Filter] holds an ordered list of [Pass] values and an ordered chain of
// child filters. Evaluating a stale filter runs its passes over its source,
// feeds the result through its children and publishes the output as the
// destination. Clean filters are not re-evaluated.
//
// # Quick Start
//
//	import "github.com/gogpu/imp"
//
//	ctx, err := imp.NewSoftwareContext()
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	warp := filters.NewWarpPass(ctx)
//	if err := warp.SetQuads(geometry.UnitQuad(), dst); err != nil {
//	    return err
//	}
//	f := imp.NewFilter(ctx, imp.WithName("warp"))
//	f.AddPass(warp)
//	f.SetSource(tex)
//	out, err := f.Destination()
//
// # Execution
//
// All work of a [Context] goes through one serial submission lane. At most
// [DefaultMaxInFlight] command buffers are in flight at once; Execute blocks
// while the limit is reached. The [HazardPolicy] decides whether the passes
// of a filter are recorded into one command buffer ([Deferred]) or submitted
// and waited on one by one ([Immediate]).
//
// # Devices
//
// Any [gpucore.Device] can back a Context. [NewSoftwareDevice] runs kernels
// on a CPU worker pool and needs no GPU. The gpu package opens a Vulkan
// device through gogpu/wgpu.
//
// # Coordinate System
//
// Textures use the usual image coordinates:
//   - Origin (0,0) at top-left
//   - X increases right
//   - Y increases down
//
// Geometry passes work in normalized device coordinates with y up; see the
// geometry package.
package imp

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
