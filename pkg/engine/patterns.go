package engine

// Console log patterns for common engine milestones, usable with a
// pattern trigger. Named groups carry the interesting captures.
const (
	// PatternNameCommand matches the output of the "name" command.
	PatternNameCommand = `"name" = "(?P<client_name>[^"]*)"`

	// PatternPlayerKill matches a kill feed line.
	PatternPlayerKill = `(?P<subject>.+) killed (?P<victim>.+) with (?P<weapon>\w+)`
)
