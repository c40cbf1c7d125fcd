// Package engine implements a small reference typesetting engine.
//
// The engine does no typesetting. It reproduces the file traffic of a
// LaTeX-style run, which is what the pass machinery cares about:
//
//  1. open the format, dumping a fresh one when none is available
//  2. open the primary input and follow \input, \include and
//     \InputIfFileExists through the provider stack
//  3. read JOB.aux as written by the previous pass, to resolve \ref
//  4. write JOB.aux with every \label of this pass, then JOB.out and
//     JOB.log
//
// A document with cross references therefore needs two passes: the first
// writes an aux file it did not read, the second reads it back unchanged.
//
// SUPPORTED MARKUP (one command per match, anywhere on a line):
//
//	\input{name}              name.tex when name has no extension
//	\include{name}            same as \input
//	\InputIfFileExists{name}  no error when missing
//	\section{title}           advances the section counter
//	\label{key}               binds key to the current section number
//	\ref{key}                 replaced by the bound number, or ?? if unknown
package engine
