// Package queryir provides the relational statement tree consumed by the
// sqlbridge compilers.
//
// The tree is produced upstream by a planner/binder (out of scope here) or
// decoded from a YAML document (DecodeYAML). It is read-only input: the
// compilers walk it once per compile call and never mutate it.
//
// ARCHITECTURE:
//
//	[planner / YAML] → [queryir.Statement] → [compiler]    → [request.Request]  → [vectorstore]
//	                                       → [querygraph]  → [request.Template] → [graphstore]
//
// SEALED INTERFACES:
//
// Statement and Expr are sealed interfaces using the marker method pattern.
// Only pointer types in this package implement them. The expression node set
// is finite, and every backend compiler matches it exhaustively:
//
//	switch e := expr.(type) {
//	case *Column:
//	    // ...
//	case *Comparison:
//	    // ...
//	default:
//	    return failure.Unsupportedf("expression %T", expr)
//	}
//
// A node kind added here therefore surfaces as an explicit Unsupported error
// in every backend until that backend decides how to translate it, instead of
// being silently mistranslated.
//
// PARAMETERS:
//
// Param nodes carry a 0-based position into the runtime argument array. The
// same position may appear more than once in a statement (for example a query
// vector used in both SELECT and ORDER BY); compilers treat repeated
// positions as the same value by identity.
//
// SHORTHANDS:
//
// C, P, L, Eq, Cmp, AllOf, AnyOf and Call build expression nodes tersely for
// tests and programmatic construction:
//
//	AllOf(Eq(C("status"), P(0)), Cmp(OpLt, Call("euclidean_distance", C("v"), P(1)), L(3)))
package queryir
