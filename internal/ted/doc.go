// Package ted reads, writes and validates Tabulated Experimental Data files.
//
// A TED file holds one electrophysiology recording as two blocks of UTF-8
// text: a header of KEY=value lines ending with END_HEADER, then delimited
// body rows, one per sample.
//
//	TED_VERSION=2022.03
//	EXPID=EXP-001
//	DEVICE_ID=rig-3
//	SAMPLING_INTERVAL=0.001
//	SAMPLING_UNIT=s
//	COLUMN=time;timestamp;unit=s
//	COLUMN=current;numeric-real;unit=pA
//	END_HEADER
//	0.000,12.5
//	0.001,NA
//	0.002,13.1
//
// # Loading
//
// [Load] distinguishes two kinds of failure. Input that cannot be read as
// TED fails with a [*FormatError], [*RowShapeError] or
// [*TypeCoercionError] and returns no dataset. Input that parses but is
// semantically inconsistent (duplicate column names, out-of-range values)
// returns a [*Dataset] in [StateInvalid]; the issues are available from
// [Dataset.Issues], all of them, grouped by [IssueCode].
//
// # Saving
//
// [Save] only accepts a dataset in [StateValid]. Any mutation through the
// Set* methods returns a dataset to [StateUnvalidated], and it must be
// validated again before it can be saved. Output is deterministic:
// saving, loading and saving again yields identical bytes.
//
// # Configuration
//
// Delimiter, missing-value token and input size limit are carried by
// [Options] and bound to a [Codec] at construction. A file's DELIMITER and
// MISSING keys override the codec for that file. The package-level
// functions use [DefaultOptions].
package ted
