package utils

const (
	// ProgramName is "elassemble"
	ProgramName = "elassemble"

	// ProgramVersion is the version of the elassemble binary
	ProgramVersion = "1.0.2"

	// ProgramURL is the repository for the elassemble source code
	ProgramURL = "http://github.com/exascience/elassemble"
)
