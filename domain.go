package corert

// Domain is the explicit capability interface that replaces reflection over
// a dynamic script object (the original looked up "enter"/"exit"/"_disposed"
// properties on a Scriptable at call time via ScriptableObject.getProperty).
// A concrete implementation is looked up once, at domain-attach time, by the
// interpreter binding (see jsrt.Domain).
type Domain interface {
	// IsDisposed reports whether the domain has been torn down. A disposed
	// domain is treated as "no domain" for the current Activity only — the
	// guard clears it for this run without mutating the Activity's stored
	// reference, matching the original's per-call domain=nil narrowing.
	IsDisposed() bool
	// Enter is invoked before the wrapped payload runs.
	Enter() error
	// Exit is invoked after the wrapped payload returns normally. It is
	// intentionally NOT invoked if the payload panics or returns an error,
	// so that the fatal-error path still observes the active domain (spec
	// §4.6).
	Exit() error
}

// runWithDomain executes fn under the Activity's domain guard, per spec
// §4.6: re-check IsDisposed, Enter, run, and — only on a normal return —
// Exit. Exit is skipped both on a returned error and on a panic, so that
// the fatal-error path still observes the active domain. It is used for
// Task and RunnableTask Activities; Callback Activities instead delegate
// domain handling to [Process.SubmitTick].
func runWithDomain(d Domain, fn func() error) (err error) {
	active := d
	if active != nil && active.IsDisposed() {
		active = nil
	}
	if active != nil {
		if err := active.Enter(); err != nil {
			return err
		}
	}

	normal := false
	defer func() {
		if normal && active != nil {
			if exitErr := active.Exit(); exitErr != nil && err == nil {
				err = exitErr
			}
		}
	}()

	err = fn()
	if err == nil {
		normal = true
	}
	return err
}
