// Package harness runs pass scenarios: small documents driven through the
// reference engine and the pass driver, with assertions on the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: cross_references
//	description: "A forward reference needs a second pass"
//	primary: main.tex
//	format: latex.fmt          # optional, dumped into a scratch format cache
//	max_passes: 6              # optional
//	files:
//	  main.tex: |
//	    \section{Intro}\label{intro} see \ref{intro}
//	formats:                   # optional, preloaded format inputs
//	  plain.fmt: "..."
//	expect:
//	  verdict: converged       # converged | needs-another-pass | inconclusive
//	  passes: 2
//	assertions:
//	  - type: file_equals
//	    name: main.out
//	    content: "1 Intro see 1\n"
//	  - type: divergence
//	    pass: 1
//	    name: main.aux
//	    reason: rewritten
//
// A scenario whose job must fail sets expect.error to a substring of the
// job error instead of expect.verdict.
//
// # Assertion Types
//
//   - file_equals: the final content of an output equals content
//   - file_contains: the final content of an output contains content
//   - divergence: pass N reported a divergence on name (and reason, if set)
//   - read: pass N read name
//   - written: pass N wrote name
//   - message_count: exactly count status messages of the given level
//   - message_contains: some status message of the given level contains content
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory provider with a fixed run
// id, so reports and status messages are identical across runs and can be
// compared against golden snapshots (see RunWithGolden).
package harness
