// Package coreerr defines the error kinds the fast-convolution core
// distinguishes (spec §7). Each kind is a sentinel that callers
// compare against with errors.Is; wrap with fmt.Errorf("...: %w", Kind)
// to add context.
package coreerr

import "errors"

var (
	// ErrInvalidConfig covers L/M/N out of range, bins'*L != L'*bins,
	// an Opus-illegal sample rate, or a duplicate stream ID. The
	// relevant create/reconfigure call fails and prior state is kept.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrResourceExhaustion covers a failed mirror-mapping, a failed
	// frequency-domain scratch allocation, or a full channel table.
	ErrResourceExhaustion = errors.New("resource exhaustion")

	// ErrOutOfRangeTuning means the desired carrier lies outside the
	// front end's usable IF. Not fatal: the channel loops with zeroed
	// indicators and a timed wait.
	ErrOutOfRangeTuning = errors.New("tuning request outside front-end coverage")

	// ErrMissingWisdom means a plan was not available at the requested
	// planning level. Non-fatal: falls back to estimate level.
	ErrMissingWisdom = errors.New("no precomputed wisdom for this plan")

	// ErrFilterOverrun means the forward FFT completed more blocks
	// ahead of a channel than the ring depth tolerates. Non-fatal: the
	// output filter jumps to the oldest still-available snapshot and
	// counts the skipped blocks as drops.
	ErrFilterOverrun = errors.New("output filter lapped by input filter")

	// ErrStreamTerminated means the external output sink closed.
	ErrStreamTerminated = errors.New("output stream terminated")

	// ErrInvalidCommand means a TLV field had an unknown type or a
	// malformed value. Other fields in the same packet still apply.
	ErrInvalidCommand = errors.New("invalid command field")
)
