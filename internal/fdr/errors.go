package fdr

import "errors"

var (
	ErrNoDimensions     = errors.New("fdr: no score dimensions configured")
	ErrInvalidBinCount  = errors.New("fdr: number of bins must be positive")
	ErrInvalidRange     = errors.New("fdr: score range minimum exceeds maximum")
	ErrInvalidTransform = errors.New("fdr: unknown score transform")
	ErrMissingScore     = errors.New("fdr: score missing or not a number")
	ErrUnknownStratum   = errors.New("fdr: no histogram node for stratum")
	ErrNotProcessed     = errors.New("fdr: calculator has not been processed")
	ErrAlreadyProcessed = errors.New("fdr: calculator has already been processed")
	ErrInvalidFDR       = errors.New("fdr: target FDR must be in (0,1]")
)
