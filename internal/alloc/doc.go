// Package alloc splits a divisible resource ("mass") across a fixed set of
// weighted categories.
//
// Weights are derived from a single ratio constant r. For n categories the
// raw family is
//
//	r, 1/r, r/2, 1/(2r), r/3, 1/(3r), ...
//
// normalized to sum to 1. With n=4 this is exactly [r, 1/r, r/2, 1/(2r)].
//
// An optional bias vector reshapes the weights (elementwise product, then
// renormalized). Whatever mass the categories do not absorb (floating-point
// drift) is the residual. By default the residual is split evenly over a
// small number of overflow slots; alternatively it can be redistributed back
// into the categories through a row-stochastic matrix.
//
// Everything in this package is a pure function of its inputs. An Allocator
// holds only validated, immutable configuration.
package alloc
