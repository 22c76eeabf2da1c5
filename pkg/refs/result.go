package refs

// Result is the terminal state of an Update or Delete.
type Result int

const (
	// ResultNone means the request was malformed and nothing was attempted.
	ResultNone Result = iota
	ResultNew
	ResultNoChange
	ResultFastForward
	ResultForced
	ResultDeleted
	ResultRejectedCASMismatch
	ResultRejectedNonFastForward
	ResultLockFailure
	ResultIOFailure
)

var resultNames = [...]string{
	ResultNone:                   "none",
	ResultNew:                    "new",
	ResultNoChange:               "no-change",
	ResultFastForward:            "fast-forward",
	ResultForced:                 "forced",
	ResultDeleted:                "deleted",
	ResultRejectedCASMismatch:    "rejected-cas-mismatch",
	ResultRejectedNonFastForward: "rejected-non-fast-forward",
	ResultLockFailure:            "lock-failure",
	ResultIOFailure:              "io-failure",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "unknown"
}

// Applied reports whether the ref now holds the requested state: the
// value was written, deleted, or already matched.
func (r Result) Applied() bool {
	switch r {
	case ResultNew, ResultNoChange, ResultFastForward, ResultForced, ResultDeleted:
		return true
	}
	return false
}
