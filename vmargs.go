package corert

import "strings"

// VMArgHandler receives the side effects of a recognized VM flag: enabling
// the `gc()` global, or toggling a deprecation-warning mode on the process
// object. corert has no process-object binding of its own (see
// [Process]) — it only recognizes flags and dispatches their effect to the
// host-supplied handler.
type VMArgHandler interface {
	EnableExposedGC()
	SetThrowDeprecation(bool)
	SetTraceDeprecation(bool)
	SetNoDeprecation(bool)
}

// ApplyVMArgs recognizes the fixed set of execution flags spec §6 lists
// and applies their effect via h, grounded on the original's initVmArgs.
// An unrecognized `--`-prefixed argument is a fatal [ConfigurationError];
// anything not starting with `--` is ignored, matching the original's
// tolerance for positional script arguments appearing in the same slice.
func ApplyVMArgs(args []string, h VMArgHandler) error {
	for _, arg := range args {
		switch {
		case arg == "--expose-gc", arg == "--expose_gc":
			h.EnableExposedGC()
		case arg == "--throw-deprecation":
			h.SetThrowDeprecation(true)
		case arg == "--trace-deprecation":
			h.SetTraceDeprecation(true)
		case arg == "--no-deprecation":
			h.SetNoDeprecation(true)
		case strings.HasPrefix(arg, "--http-adapter"):
			// Handled by the host shell, not the core.
		case strings.HasPrefix(arg, "--node-version"), strings.HasPrefix(arg, "--node_version"):
			// Version negotiation happens outside the core.
		case arg == "--debug", arg == "--trace":
			// Recognized no-ops at this level.
		case strings.HasPrefix(arg, "--"):
			return &ConfigurationError{Flag: arg}
		}
	}
	return nil
}
