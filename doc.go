// Package scatter splits a byte stream into a set of plainly named files
// whose sizes alone encode their order.
//
// A stream of length L split into N fragments uses base = L/N. The first
// N-1 fragments take base, base-1, base-2 and so on; the last fragment takes
// whatever remains and is always the largest. Sorting the fragments by size
// (descending, largest moved to the end) recovers the original order without
// any index, manifest, or naming convention.
//
// The package has three stages:
//   - [NameSource] produces the fragment names (a list file, sequential
//     numbers, or random tokens).
//   - [NewPlan] computes and validates the sizes before any file is written.
//   - [Partitioner] streams the source into one sink per fragment.
//
// [Order] and [Join] invert the process. Producing the source stream from a
// directory is left to a collaborator such as the archive subpackage.
//
// # Quick Start
//
//	names, err := scatter.Count{N: 5}.Names()
//	if err != nil {
//	    return err
//	}
//	plan, err := scatter.NewPlan(src.Size, names)
//	if err != nil {
//	    return err
//	}
//	p := scatter.NewPartitioner(scatter.DirSink{Dir: "out"})
//	res, err := p.Partition(ctx, src, plan)
package scatter
