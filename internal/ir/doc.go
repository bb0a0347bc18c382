// Package ir provides the foreign value model attached to compiled requests.
//
// This package contains value definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps values the foundational
// layer with no circular dependencies.
//
// A Value is either a literal known at compile time (Null, String, Int, Float,
// Bool, Vector, Array) or a ParamRef pointing at a position in the runtime
// argument array supplied at execution. Compilers never see argument values:
// they route ParamRefs into request slots and executors resolve them right
// before the backend call.
//
// Key design constraints:
//   - ParamRef positions are unique per compiled request
//   - Identity of a value is its ParamRef position or its canonical literal text,
//     never a runtime value comparison
//   - Canonical JSON (MarshalCanonical) is the only serialization used for
//     fingerprints and golden files
package ir
