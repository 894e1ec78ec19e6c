// Package core turns spreadsheet grids into typed, validated records.
//
// This package holds all of the domain logic and has no transport or UI
// dependencies. Web handlers, the CLI and tests drive it through the
// [Retriever], which combines a [Transport] with the pieces below.
//
// # Architecture
//
//   - Coercion: [Coerce] maps a raw cell string and a [Rule] to a typed value.
//   - Tables: [NewTable] slices a [Grid] into titles, rules and data rows
//     according to an immutable [Layout].
//   - Building: [Builder.Build] runs every data row through the ordered
//     stages coerce, require, validate, format and emits [Record] values.
//   - Metadata: [MetadataCache] is a single-flight cache of the table list;
//     concurrent callers share one transport call.
//   - Ranges: [RangeResolver] computes the A1 address to fetch for a table.
//   - Retrieval: [Retriever.FetchOne] and [Retriever.FetchMany] issue the
//     values calls and feed the grids through the builder.
//   - Limiting: [FetchLimiter] bounds concurrent transport calls.
//   - Types: [TypeRegistry] adds rule types beyond the built-in ones; the
//     defaults register date and uuid.
//
// # Building Records
//
// A typical grid carries titles on line 1, rules on line 2 and data from
// line 3:
//
//	id           | name   | active
//	int:required | string | boolean
//	1            | alpha  | TRUE
//
// Building it with [DefaultLayout] yields
//
//	[{"id":1,"name":"alpha","active":true}]
//
// Formatters can return [Deleted] to omit a key from a record.
//
// # Diagnostics
//
// Validation problems never stop a build. They are sent to the builder's
// [Reporter] (by default [SlogReporter]) as [Diagnostic] values:
//
//   - unknown_type: the rule names a type nobody handles
//   - invalid_value: a value failed its type on a non-empty cell
//   - required_missing: a required cell is empty
//   - rejected: the validator hook returned false
//
// Hook errors, in contrast, are fatal for the table being built.
//
// # Error Handling
//
// Operations return [ConfigurationError], [NotFoundError], [TransportError]
// or [HookError]. [MapError] converts any of them to a [UserMessage] with a
// support code:
//
//   - CFG001: invalid layout
//   - NF001: table not found
//   - HOOK001: a validator or formatter failed
//   - TR000-TR003: transport failures
//   - FETCH001-FETCH003: limiter and cancellation errors
package core
